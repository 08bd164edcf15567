// movie-ranking/internal/domain/movie.go
package domain

// Movie представляет запись в личном списке фильмов.
// Rating, Ranking и Review отсутствуют (nil), пока пользователь их не заполнил.
type Movie struct {
	ID          int64    `json:"id" db:"id"`
	Title       string   `json:"title" db:"title"`
	Year        int      `json:"year" db:"year"`
	Description string   `json:"description" db:"description"`
	Rating      *float64 `json:"rating,omitempty" db:"rating"`
	Ranking     *int     `json:"ranking,omitempty" db:"ranking"` // Производное поле, пересчитывается при каждом показе списка
	Review      *string  `json:"review,omitempty" db:"review"`
	ImgURL      string   `json:"img_url" db:"img_url"`
}

// RateMovieRequest определяет данные формы оценки фильма
type RateMovieRequest struct {
	Rating *float64 `form:"rating" validate:"required,gte=1,lte=10"`
	Review string   `form:"review" validate:"required,max=250"`
}

// FindMovieRequest определяет данные формы поиска фильма
type FindMovieRequest struct {
	Title string `form:"title" validate:"required"`
}

// SearchResult - один результат поиска во внешнем API метаданных
type SearchResult struct {
	ExternalID  int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
	Overview    string `json:"overview"`
}

// MovieDetails - подробная информация о фильме из внешнего API
type MovieDetails struct {
	ExternalID  int64  `json:"id"`
	Title       string `json:"title"`
	ReleaseDate string `json:"release_date"`
	PosterPath  string `json:"poster_path"`
	Overview    string `json:"overview"`
}
