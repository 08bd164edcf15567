// Package ranking пересчитывает позиции фильмов в списке.
package ranking

import (
	"context"
	"fmt"

	"movie-ranking/internal/domain"
	"movie-ranking/internal/store"
)

// Assign проставляет ranking = len - index для списка, отсортированного по возрастанию
// (rating, year). Фильм с максимальной парой получает позицию 1.
func Assign(movies []*domain.Movie) map[int64]int {
	rankings := make(map[int64]int, len(movies))
	for i, movie := range movies {
		rank := len(movies) - i
		movie.Ranking = &rank
		rankings[movie.ID] = rank
	}
	return rankings
}

// Recompute читает все фильмы, пересчитывает позиции и сохраняет их.
// Два одновременных пересчета могут записать пересекающиеся позиции;
// последняя запись побеждает.
func Recompute(ctx context.Context, s store.MovieStore) ([]*domain.Movie, error) {
	movies, err := s.ListAllSorted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list movies for ranking: %w", err)
	}
	rankings := Assign(movies)
	if err := s.SaveRankings(ctx, rankings); err != nil {
		return nil, fmt.Errorf("save rankings: %w", err)
	}
	return movies, nil
}
