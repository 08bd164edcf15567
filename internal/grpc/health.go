// movie-ranking/internal/grpc/health.go
package grpc

import (
	"context"
	"log/slog"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName - имя сервиса в протоколе grpc.health.v1.
const ServiceName = "movies.MovieList"

const pingTimeout = 3 * time.Second

// Pinger - все, что умеет проверить доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthReporter переводит состояние хранилища в статусы gRPC health.
type HealthReporter struct {
	health   *health.Server
	store    Pinger
	logger   *slog.Logger
	interval time.Duration
}

// NewHealthReporter создает репортер. До первой проверки статус NOT_SERVING.
func NewHealthReporter(store Pinger, logger *slog.Logger, interval time.Duration) *HealthReporter {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthReporter{
		health:   hs,
		store:    store,
		logger:   logger,
		interval: interval,
	}
}

// Register подключает health и reflection к gRPC серверу.
func (h *HealthReporter) Register(srv *gogrpc.Server) {
	healthpb.RegisterHealthServer(srv, h.health)
	reflection.Register(srv)
}

// Check один раз проверяет хранилище и обновляет статус. Возвращает выставленный статус.
func (h *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(pingCtx); err != nil {
		h.logger.WarnContext(ctx, "Store ping failed, reporting NOT_SERVING", slog.String("error", err.Error()))
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus(ServiceName, status)
	h.health.SetServingStatus("", status)
	return status
}

// Run проверяет хранилище каждые interval до отмены ctx, затем переводит сервер в shutdown.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			h.logger.Info("gRPC health reporter stopped")
			return
		case <-ticker.C:
			h.Check(ctx)
		}
	}
}

// Server нужен для прямых вызовов Check в тестах.
func (h *HealthReporter) Server() healthpb.HealthServer {
	return h.health
}
