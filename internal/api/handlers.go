// movie-ranking/internal/api/handlers.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"movie-ranking/internal/domain"
	"movie-ranking/internal/metrics"
	"movie-ranking/internal/ranking"
	"movie-ranking/internal/store"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedDetails - ответ API деталей не позволяет построить запись фильма.
var ErrMalformedDetails = errors.New("malformed movie details")

// MetadataClient определяет интерфейс клиента внешнего API метаданных
type MetadataClient interface {
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
	FetchDetails(ctx context.Context, externalID string) (*domain.MovieDetails, error)
}

// MovieHandler содержит зависимости для HTTP обработчиков
type MovieHandler struct {
	store        store.MovieStore
	client       MetadataClient
	logger       *slog.Logger
	validator    *validator.Validate
	metrics      *metrics.Manager
	views        views
	imageBaseURL string
}

// NewMovieHandler создает новый экземпляр MovieHandler.
func NewMovieHandler(s store.MovieStore, c MetadataClient, l *slog.Logger, v *validator.Validate, m *metrics.Manager, imageBaseURL string) (*MovieHandler, error) {
	vs, err := loadViews()
	if err != nil {
		return nil, err
	}
	return &MovieHandler{
		store:        s,
		client:       c,
		logger:       l,
		validator:    v,
		metrics:      m,
		views:        vs,
		imageBaseURL: imageBaseURL,
	}, nil
}

// --- Вспомогательные функции ---

func (h *MovieHandler) respondHTML(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	var buf bytes.Buffer
	if err := h.views.render(&buf, page, data); err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to render page", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to write response", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
	}
}

func (h *MovieHandler) respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			h.logger.ErrorContext(r.Context(), "Failed to encode JSON response", slog.String("error", err.Error()), slog.String("path", r.URL.Path))
		}
	}
}

type errorPage struct {
	Status  int
	Message string
}

func (h *MovieHandler) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respondHTML(w, r, status, pageError, errorPage{Status: status, Message: message})
}

// movieIDFromQuery разбирает обязательный параметр id.
func movieIDFromQuery(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// newMovieFromDetails строит запись из ответа API: год - первая часть release_date до '-'.
func newMovieFromDetails(details *domain.MovieDetails, imageBaseURL string) (*domain.Movie, error) {
	if strings.TrimSpace(details.Title) == "" {
		return nil, fmt.Errorf("%w: empty title", ErrMalformedDetails)
	}
	yearPart := strings.Split(details.ReleaseDate, "-")[0]
	year, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil {
		return nil, fmt.Errorf("%w: release date %q has no year", ErrMalformedDetails, details.ReleaseDate)
	}
	return &domain.Movie{
		Title:       details.Title,
		Year:        year,
		Description: details.Overview,
		ImgURL:      imageBaseURL + details.PosterPath,
	}, nil
}

// --- Обработчики ---

type indexPage struct {
	Movies []*domain.Movie
	Count  int
}

// Home показывает список фильмов и пересчитывает их позиции.
func (h *MovieHandler) Home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movies, err := ranking.Recompute(ctx, h.store)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to recompute rankings", slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to load movies")
		return
	}
	h.metrics.RecordRankingRecompute(len(movies))

	h.logger.InfoContext(ctx, "Movies list rendered", slog.Int("count", len(movies)))
	h.respondHTML(w, r, http.StatusOK, pageIndex, indexPage{Movies: movies, Count: len(movies)})
}

type editPage struct {
	Movie  *domain.Movie
	Rating string
	Review string
	Errors FieldErrors
}

// Edit показывает форму оценки (GET) и применяет ее (POST).
func (h *MovieHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movieID, ok := movieIDFromQuery(r)
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "Movie not found")
		return
	}
	movie, err := h.store.GetByID(ctx, movieID)
	if err != nil {
		if errors.Is(err, store.ErrMovieNotFound) {
			h.respondError(w, r, http.StatusNotFound, "Movie not found")
		} else {
			h.logger.ErrorContext(ctx, "Error finding movie by ID", slog.Int64("movieID", movieID), slog.String("error", err.Error()))
			h.respondError(w, r, http.StatusInternalServerError, "Error finding movie")
		}
		return
	}

	if r.Method != http.MethodPost {
		page := editPage{Movie: movie}
		if movie.Rating != nil {
			page.Rating = strconv.FormatFloat(*movie.Rating, 'f', -1, 64)
		}
		if movie.Review != nil {
			page.Review = *movie.Review
		}
		h.respondHTML(w, r, http.StatusOK, pageEdit, page)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.logger.WarnContext(ctx, "Failed to parse edit form", slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	result, err := ValidateRatingForm(ctx, h.validator, r.PostForm)
	if err != nil {
		h.logger.ErrorContext(ctx, "Rating form validation could not run", slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to validate form")
		return
	}
	if !result.OK() {
		h.logger.InfoContext(ctx, "Rating form validation failed", slog.Int64("movieID", movieID), slog.Any("errors", result.Errors))
		h.respondHTML(w, r, http.StatusUnprocessableEntity, pageEdit, editPage{
			Movie:  movie,
			Rating: r.PostForm.Get("rating"),
			Review: r.PostForm.Get("review"),
			Errors: result.Errors,
		})
		return
	}

	if err := h.store.UpdateRatingReview(ctx, movieID, result.Value.Rating, result.Value.Review); err != nil {
		if errors.Is(err, store.ErrMovieNotFound) {
			h.respondError(w, r, http.StatusNotFound, "Movie not found")
		} else {
			h.logger.ErrorContext(ctx, "Failed to update movie rating", slog.Int64("movieID", movieID), slog.String("error", err.Error()))
			h.respondError(w, r, http.StatusInternalServerError, "Failed to update movie")
		}
		return
	}
	h.logger.InfoContext(ctx, "Movie rating updated", slog.Int64("movieID", movieID), slog.Float64("rating", result.Value.Rating))
	http.Redirect(w, r, "/", http.StatusFound)
}

// Delete удаляет фильм и возвращает на список.
func (h *MovieHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	movieID, ok := movieIDFromQuery(r)
	if !ok {
		h.respondError(w, r, http.StatusNotFound, "Movie not found")
		return
	}
	if err := h.store.Delete(ctx, movieID); err != nil {
		if errors.Is(err, store.ErrMovieNotFound) {
			h.respondError(w, r, http.StatusNotFound, "Movie not found")
		} else {
			h.logger.ErrorContext(ctx, "Failed to delete movie", slog.Int64("movieID", movieID), slog.String("error", err.Error()))
			h.respondError(w, r, http.StatusInternalServerError, "Failed to delete movie")
		}
		return
	}
	h.logger.InfoContext(ctx, "Movie deleted", slog.Int64("movieID", movieID))
	http.Redirect(w, r, "/", http.StatusFound)
}

type addPage struct {
	Title  string
	Errors FieldErrors
}

type selectPage struct {
	Query   string
	Results []domain.SearchResult
}

// Add показывает форму поиска (GET) и результаты поиска во внешнем API (POST).
func (h *MovieHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		h.respondHTML(w, r, http.StatusOK, pageAdd, addPage{})
		return
	}

	if err := r.ParseForm(); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "Invalid form data")
		return
	}
	result, err := ValidateSearchForm(ctx, h.validator, r.PostForm)
	if err != nil {
		h.logger.ErrorContext(ctx, "Search form validation could not run", slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusInternalServerError, "Failed to validate form")
		return
	}
	if !result.OK() {
		h.respondHTML(w, r, http.StatusUnprocessableEntity, pageAdd, addPage{Title: r.PostForm.Get("title"), Errors: result.Errors})
		return
	}

	results, err := h.client.Search(ctx, result.Value)
	if err != nil {
		h.logger.ErrorContext(ctx, "Movie search failed", slog.String("query", result.Value), slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusBadGateway, "Movie search is unavailable")
		return
	}
	h.respondHTML(w, r, http.StatusOK, pageSelect, selectPage{Query: result.Value, Results: results})
}

// Find получает детали выбранного фильма, создает запись и ведет на форму оценки.
func (h *MovieHandler) Find(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	externalID := strings.TrimSpace(r.URL.Query().Get("id"))
	if externalID == "" {
		h.respondError(w, r, http.StatusBadRequest, "Movie id is required")
		return
	}

	details, err := h.client.FetchDetails(ctx, externalID)
	if err != nil {
		h.logger.ErrorContext(ctx, "Fetching movie details failed", slog.String("external_id", externalID), slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusBadGateway, "Movie details are unavailable")
		return
	}

	movie, err := newMovieFromDetails(details, h.imageBaseURL)
	if err != nil {
		h.logger.ErrorContext(ctx, "Movie details response is malformed", slog.String("external_id", externalID), slog.String("error", err.Error()))
		h.respondError(w, r, http.StatusBadGateway, "Movie details are incomplete")
		return
	}

	if err := h.store.Create(ctx, movie); err != nil {
		if errors.Is(err, store.ErrMovieAlreadyExists) {
			h.respondError(w, r, http.StatusConflict, fmt.Sprintf("%q is already in your list", movie.Title))
		} else {
			h.logger.ErrorContext(ctx, "Failed to create movie", slog.String("title", movie.Title), slog.String("error", err.Error()))
			h.respondError(w, r, http.StatusInternalServerError, "Failed to add movie")
		}
		return
	}

	h.logger.InfoContext(ctx, "Movie added from metadata API", slog.Int64("movieID", movie.ID), slog.String("external_id", externalID))
	http.Redirect(w, r, "/edit?id="+strconv.FormatInt(movie.ID, 10), http.StatusFound)
}

// Health сообщает о доступности хранилища.
func (h *MovieHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "Health check failed", slog.String("error", err.Error()))
		h.respondJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	h.respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound отдает страницу 404 для неизвестных путей.
func (h *MovieHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, r, http.StatusNotFound, "Page not found")
}

// MethodNotAllowed отдает страницу 405 для известного пути с неверным методом.
func (h *MovieHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
}
