// movie-ranking/internal/store/postgres_movie_store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"movie-ranking/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq" // Для обработки ошибок PostgreSQL
)

const uniqueViolationCode = "23505"

const movieColumns = `id, title, year, description, rating, ranking, review, img_url`

const createMoviesTable = `CREATE TABLE IF NOT EXISTS movies (
	id          BIGSERIAL PRIMARY KEY,
	title       TEXT NOT NULL UNIQUE,
	year        INTEGER NOT NULL,
	description TEXT NOT NULL,
	rating      DOUBLE PRECISION,
	ranking     INTEGER,
	review      VARCHAR(250),
	img_url     TEXT NOT NULL
)`

// Таблицы, созданные старой схемой, получают TEXT для значений из внешнего API.
const widenMovieColumns = `ALTER TABLE movies
	ALTER COLUMN title TYPE TEXT,
	ALTER COLUMN img_url TYPE TEXT`

// PostgresMovieStore реализует MovieStore для PostgreSQL.
type PostgresMovieStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewPostgresMovieStore создает новый экземпляр PostgresMovieStore.
func NewPostgresMovieStore(db *sqlx.DB, logger *slog.Logger) (*PostgresMovieStore, error) {
	if db == nil {
		return nil, errors.New("database connection (db) cannot be nil")
	}
	return &PostgresMovieStore{db: db, logger: logger}, nil
}

// Migrate создает таблицу movies, если ее еще нет.
func (s *PostgresMovieStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createMoviesTable); err != nil {
		s.logger.ErrorContext(ctx, "Failed to create movies table", slog.String("error", err.Error()))
		return fmt.Errorf("failed to migrate movies table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, widenMovieColumns); err != nil {
		s.logger.ErrorContext(ctx, "Failed to widen movies columns", slog.String("error", err.Error()))
		return fmt.Errorf("failed to migrate movies columns: %w", err)
	}
	s.logger.InfoContext(ctx, "Movies table is ready")
	return nil
}

// ListAllSorted возвращает все фильмы, отсортированные по рейтингу и году по возрастанию.
func (s *PostgresMovieStore) ListAllSorted(ctx context.Context) ([]*domain.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies ORDER BY rating ASC NULLS FIRST, year ASC, id ASC`
	movies := []*domain.Movie{}

	s.logger.DebugContext(ctx, "Executing ListAllSorted query")
	if err := s.db.SelectContext(ctx, &movies, query); err != nil {
		s.logger.ErrorContext(ctx, "Failed to list movies from DB", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list movies: %w", err)
	}
	return movies, nil
}

// GetByID находит фильм по его ID.
func (s *PostgresMovieStore) GetByID(ctx context.Context, id int64) (*domain.Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE id = $1`
	var movie domain.Movie

	s.logger.DebugContext(ctx, "Executing GetMovieByID query", slog.Int64("movieID", id))
	err := s.db.GetContext(ctx, &movie, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.WarnContext(ctx, "Movie not found by ID in DB", slog.Int64("movieID", id))
			return nil, ErrMovieNotFound
		}
		s.logger.ErrorContext(ctx, "Failed to get movie by ID from DB", slog.Int64("movieID", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get movie by ID: %w", err)
	}
	return &movie, nil
}

// Create вставляет новый фильм и записывает назначенный id в movie.ID.
func (s *PostgresMovieStore) Create(ctx context.Context, movie *domain.Movie) error {
	query := `INSERT INTO movies (title, year, description, rating, ranking, review, img_url)
              VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	s.logger.DebugContext(ctx, "Executing Create movie query", slog.String("title", movie.Title))
	err := s.db.QueryRowxContext(ctx, query,
		movie.Title, movie.Year, movie.Description, movie.Rating, movie.Ranking, movie.Review, movie.ImgURL,
	).Scan(&movie.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
			s.logger.WarnContext(ctx, "Movie already exists (unique constraint violation in DB)", slog.String("title", movie.Title), slog.String("constraint", pqErr.Constraint))
			return ErrMovieAlreadyExists
		}
		s.logger.ErrorContext(ctx, "Failed to create movie in DB", slog.String("error", err.Error()))
		return fmt.Errorf("failed to create movie: %w", err)
	}
	s.logger.InfoContext(ctx, "Movie created successfully in DB", slog.Int64("movieID", movie.ID))
	return nil
}

// UpdateRatingReview перезаписывает только rating и review.
func (s *PostgresMovieStore) UpdateRatingReview(ctx context.Context, id int64, rating float64, review string) error {
	query := `UPDATE movies SET rating = $1, review = $2 WHERE id = $3`

	s.logger.DebugContext(ctx, "Executing UpdateRatingReview query", slog.Int64("movieID", id))
	result, err := s.db.ExecContext(ctx, query, rating, review, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to update movie rating in DB", slog.Int64("movieID", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to update movie rating: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		s.logger.WarnContext(ctx, "No movie found to update rating in DB", slog.Int64("movieID", id))
		return ErrMovieNotFound
	}
	s.logger.InfoContext(ctx, "Movie rating updated successfully in DB", slog.Int64("movieID", id))
	return nil
}

func (s *PostgresMovieStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete movie from DB", slog.Int64("movieID", id), slog.String("error", err.Error()))
		return fmt.Errorf("failed to delete movie: %w", err)
	}
	if rowsAffected, _ := result.RowsAffected(); rowsAffected == 0 {
		s.logger.WarnContext(ctx, "No movie found to delete in DB", slog.Int64("movieID", id))
		return ErrMovieNotFound
	}
	s.logger.InfoContext(ctx, "Movie deleted successfully from DB", slog.Int64("movieID", id))
	return nil
}

// SaveRankings записывает рейтинговые позиции одной транзакцией.
func (s *PostgresMovieStore) SaveRankings(ctx context.Context, rankings map[int64]int) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin rankings transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.ErrorContext(ctx, "Failed to rollback rankings transaction", slog.String("error", rbErr.Error()))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, `UPDATE movies SET ranking = $1 WHERE id = $2`)
	if err != nil {
		return fmt.Errorf("failed to prepare rankings update: %w", err)
	}
	defer stmt.Close()

	for id, rank := range rankings {
		if _, err = stmt.ExecContext(ctx, rank, id); err != nil {
			s.logger.ErrorContext(ctx, "Failed to save movie ranking", slog.Int64("movieID", id), slog.String("error", err.Error()))
			return fmt.Errorf("failed to save ranking for movie %d: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rankings: %w", err)
	}
	s.logger.DebugContext(ctx, "Rankings saved in DB", slog.Int("count", len(rankings)))
	return nil
}

func (s *PostgresMovieStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
