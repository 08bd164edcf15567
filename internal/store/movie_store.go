package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync" // Для защиты доступа к in-memory карте

	"movie-ranking/internal/domain"
)

var (
	ErrMovieNotFound      = errors.New("movie not found")
	ErrMovieAlreadyExists = errors.New("movie with this title already exists")
)

type MovieStore interface {
	ListAllSorted(ctx context.Context) ([]*domain.Movie, error)
	GetByID(ctx context.Context, id int64) (*domain.Movie, error)
	Create(ctx context.Context, movie *domain.Movie) error
	UpdateRatingReview(ctx context.Context, id int64, rating float64, review string) error
	Delete(ctx context.Context, id int64) error
	SaveRankings(ctx context.Context, rankings map[int64]int) error
	Ping(ctx context.Context) error
}

// lessByRatingYear задает порядок списка: рейтинг по возрастанию (nil - минимальное значение),
// затем год по возрастанию, затем id.
func lessByRatingYear(a, b *domain.Movie) bool {
	switch {
	case a.Rating == nil && b.Rating != nil:
		return true
	case a.Rating != nil && b.Rating == nil:
		return false
	case a.Rating != nil && b.Rating != nil && *a.Rating != *b.Rating:
		return *a.Rating < *b.Rating
	}
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	return a.ID < b.ID
}

// MemoryMovieStore - хранилище в памяти. Используется в тестах и при store_driver=memory.
type MemoryMovieStore struct {
	mu     sync.RWMutex
	movies map[int64]*domain.Movie
	nextID int64
	logger *slog.Logger
}

func NewMemoryMovieStore(logger *slog.Logger) *MemoryMovieStore {
	return &MemoryMovieStore{
		movies: make(map[int64]*domain.Movie),
		nextID: 1,
		logger: logger,
	}
}

func cloneMovie(m *domain.Movie) *domain.Movie {
	c := *m
	if m.Rating != nil {
		v := *m.Rating
		c.Rating = &v
	}
	if m.Ranking != nil {
		v := *m.Ranking
		c.Ranking = &v
	}
	if m.Review != nil {
		v := *m.Review
		c.Review = &v
	}
	return &c
}

func (m *MemoryMovieStore) ListAllSorted(ctx context.Context) ([]*domain.Movie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.Movie, 0, len(m.movies))
	for _, movie := range m.movies {
		result = append(result, cloneMovie(movie)) // Возвращаем копии
	}
	sort.Slice(result, func(i, j int) bool { return lessByRatingYear(result[i], result[j]) })
	m.logger.DebugContext(ctx, "Listed movies from memory store", slog.Int("count", len(result)))
	return result, nil
}

func (m *MemoryMovieStore) GetByID(ctx context.Context, id int64) (*domain.Movie, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	movie, ok := m.movies[id]
	if !ok {
		m.logger.WarnContext(ctx, "Movie not found by ID in memory store", slog.Int64("movieID", id))
		return nil, ErrMovieNotFound
	}
	return cloneMovie(movie), nil
}

func (m *MemoryMovieStore) Create(ctx context.Context, movie *domain.Movie) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.movies {
		if existing.Title == movie.Title {
			m.logger.WarnContext(ctx, "Movie already exists in memory store", slog.String("title", movie.Title))
			return ErrMovieAlreadyExists
		}
	}
	movie.ID = m.nextID
	m.nextID++
	m.movies[movie.ID] = cloneMovie(movie)
	m.logger.InfoContext(ctx, "Movie created in memory store", slog.Int64("movieID", movie.ID), slog.String("title", movie.Title))
	return nil
}

func (m *MemoryMovieStore) UpdateRatingReview(ctx context.Context, id int64, rating float64, review string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	movie, ok := m.movies[id]
	if !ok {
		return ErrMovieNotFound
	}
	movie.Rating = &rating
	movie.Review = &review
	m.logger.InfoContext(ctx, "Movie rating and review updated in memory store", slog.Int64("movieID", id))
	return nil
}

func (m *MemoryMovieStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.movies[id]; !ok {
		return ErrMovieNotFound
	}
	delete(m.movies, id)
	m.logger.InfoContext(ctx, "Movie deleted from memory store", slog.Int64("movieID", id))
	return nil
}

// SaveRankings пропускает id, которых уже нет в хранилище.
func (m *MemoryMovieStore) SaveRankings(ctx context.Context, rankings map[int64]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rank := range rankings {
		movie, ok := m.movies[id]
		if !ok {
			continue
		}
		r := rank
		movie.Ranking = &r
	}
	return nil
}

func (m *MemoryMovieStore) Ping(ctx context.Context) error {
	return nil
}
