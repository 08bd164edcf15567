// movie-ranking/internal/clients/tmdb_client.go
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"movie-ranking/internal/domain"
)

const (
	DefaultBaseURL      = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/original"
	defaultTimeout      = 10 * time.Second
)

// ErrAPI - общая ошибка обращения к внешнему API метаданных.
var ErrAPI = errors.New("metadata api request failed")

// APIError описывает неудачный вызов TMDB: транспортную ошибку, статус не 2xx или плохой JSON.
type APIError struct {
	Op         string
	StatusCode int // 0, если ответа не было
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("tmdb %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("tmdb %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAPI}
	}
	return []error{ErrAPI, e.Err}
}

// Observer получает результат каждого вызова (используется для метрик).
type Observer func(operation, outcome string)

// TMDBClient - HTTP клиент The Movie Database с авторизацией по Bearer токену.
type TMDBClient struct {
	baseURL      string
	token        string
	includeAdult bool
	httpClient   *http.Client
	logger       *slog.Logger
	observe      Observer
}

// Option настраивает TMDBClient.
type Option func(*TMDBClient)

func WithBaseURL(baseURL string) Option {
	return func(c *TMDBClient) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout ограничивает время одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *TMDBClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithIncludeAdult(include bool) Option {
	return func(c *TMDBClient) { c.includeAdult = include }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *TMDBClient) { c.httpClient = hc }
}

func WithObserver(o Observer) Option {
	return func(c *TMDBClient) { c.observe = o }
}

// NewTMDBClient создает клиент. Токен передается извне (конфигурация).
func NewTMDBClient(token string, logger *slog.Logger, opts ...Option) *TMDBClient {
	c := &TMDBClient{
		baseURL:      DefaultBaseURL,
		token:        token,
		includeAdult: true,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       logger,
		observe:      func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Page    int                   `json:"page"`
	Results []domain.SearchResult `json:"results"`
}

// Search ищет фильмы по названию.
func (c *TMDBClient) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	c.logger.InfoContext(ctx, "Calling TMDB movie search", slog.String("query", query))

	params := url.Values{}
	params.Set("query", query)
	params.Set("include_adult", strconv.FormatBool(c.includeAdult))

	var resp searchResponse
	if err := c.get(ctx, "search", "/search/movie?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "TMDB movie search successful", slog.String("query", query), slog.Int("results", len(resp.Results)))
	return resp.Results, nil
}

// FetchDetails получает подробности фильма по внешнему id.
func (c *TMDBClient) FetchDetails(ctx context.Context, externalID string) (*domain.MovieDetails, error) {
	c.logger.InfoContext(ctx, "Calling TMDB movie details", slog.String("external_id", externalID))

	if externalID == "" {
		return nil, &APIError{Op: "details", Err: errors.New("external id cannot be empty")}
	}

	var details domain.MovieDetails
	if err := c.get(ctx, "details", "/movie/"+url.PathEscape(externalID), &details); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "TMDB movie details successful", slog.String("external_id", externalID), slog.String("title_returned", details.Title))
	return &details, nil
}

func (c *TMDBClient) get(ctx context.Context, op, path string, dest any) error {
	outcome := "error"
	defer func() { c.observe(op, outcome) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "TMDB request failed", slog.String("op", op), slog.String("error", err.Error()))
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.ErrorContext(ctx, "TMDB returned non-2xx status", slog.String("op", op), slog.Int("status", resp.StatusCode))
		return &APIError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode TMDB response", slog.String("op", op), slog.String("error", err.Error()))
		return &APIError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	outcome = "ok"
	return nil
}
