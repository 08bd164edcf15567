// movie-ranking/cmd/movieservice/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL
	"google.golang.org/grpc"

	httpAPI "movie-ranking/internal/api"
	"movie-ranking/internal/clients"
	"movie-ranking/internal/config"
	grpcHealth "movie-ranking/internal/grpc"
	"movie-ranking/internal/metrics"
	"movie-ranking/internal/store"
)

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactDBURL - URL базы для логов без пароля.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}

// connectToDB инициализирует соединение с базой данных
func connectToDB(ctx context.Context, dbURL string, logger *slog.Logger) (*sqlx.DB, error) {
	logger.Info("Attempting to connect to database", slog.String("dbURL_used", redactDBURL(dbURL)))

	db, err := sqlx.ConnectContext(ctx, "postgres", dbURL)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	logger.Info("Successfully connected to PostgreSQL database.")
	return db, nil
}

// openStore выбирает хранилище по конфигурации. cleanup закрывает соединение с БД.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.MovieStore, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("Using in-memory movie store, data will not survive a restart")
		return store.NewMemoryMovieStore(logger), func() {}, nil
	}

	db, err := connectToDB(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		logger.Info("Closing PostgreSQL database connection...")
		if err := db.Close(); err != nil {
			logger.Error("Failed to close PostgreSQL connection", slog.String("error", err.Error()))
		}
	}

	pgStore, err := store.NewPostgresMovieStore(db, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := pgStore.Migrate(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return pgStore, cleanup, nil
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	validate := validator.New()
	metricsManager := metrics.NewManager()

	if cfg.TMDBToken == "" {
		logger.Warn("MOVIES_TMDB_TOKEN is not set, movie search requests will be rejected by TMDB")
	}

	// --- Инициализация хранилища ---
	movieStorage, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize movie store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()
	logger.Info("Movie store initialized", slog.String("driver", cfg.StoreDriver))

	tmdbClient := clients.NewTMDBClient(cfg.TMDBToken, logger,
		clients.WithBaseURL(cfg.TMDBBaseURL),
		clients.WithTimeout(cfg.TMDBTimeout),
		clients.WithIncludeAdult(cfg.TMDBIncludeAdult),
		clients.WithObserver(metricsManager.RecordExternalCall),
	)

	// --- Настройка и запуск gRPC сервера (health + reflection) ---
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	healthReporter := grpcHealth.NewHealthReporter(movieStorage, logger, cfg.HealthInterval)
	grpcSrv := grpc.NewServer()
	healthReporter.Register(grpcSrv)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("Failed to listen for gRPC", slog.String("addr", cfg.GRPCAddr), slog.String("error", err.Error()))
		os.Exit(1)
	}
	go healthReporter.Run(healthCtx)
	go func() {
		logger.Info("gRPC health server starting", slog.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server Serve() failed", slog.String("error", err.Error()))
		}
	}()

	// --- Настройка и запуск HTTP сервера ---
	movieHandler, err := httpAPI.NewMovieHandler(movieStorage, tmdbClient, logger, validate, metricsManager, cfg.TMDBImageBaseURL)
	if err != nil {
		logger.Error("Failed to initialize HTTP handlers", slog.String("error", err.Error()))
		os.Exit(1)
	}
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpAPI.NewRouter(movieHandler, logger, metricsManager),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.TMDBTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server ListenAndServe() failed", slog.String("error", err.Error()))
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Movie service shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server Shutdown Failed", slog.String("error", err.Error()))
	} else {
		logger.Info("HTTP Server gracefully stopped.")
	}

	stopHealth()
	grpcSrv.GracefulStop()
	logger.Info("gRPC server gracefully stopped.")
}
