// movie-ranking/internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"movie-ranking/internal/metrics"
)

func NewRouter(handler *MovieHandler, logger *slog.Logger, m *metrics.Manager) *mux.Router {
	router := mux.NewRouter()
	// router.Use не применяется к NotFound/MethodNotAllowed, поэтому оборачиваем их явно.
	withMiddleware := func(h http.HandlerFunc) http.Handler {
		return RequestIDMiddleware(AccessLogMiddleware(logger, m)(h))
	}
	router.NotFoundHandler = withMiddleware(handler.NotFound)
	router.MethodNotAllowedHandler = withMiddleware(handler.MethodNotAllowed)

	router.HandleFunc("/", handler.Home).Methods(http.MethodGet)
	router.HandleFunc("/edit", handler.Edit).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/delete", handler.Delete).Methods(http.MethodGet)
	router.HandleFunc("/add", handler.Add).Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/find", handler.Find).Methods(http.MethodGet)

	// Служебные эндпоинты
	router.HandleFunc("/healthz", handler.Health).Methods(http.MethodGet)
	router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	router.Use(RequestIDMiddleware, AccessLogMiddleware(logger, m))

	return router
}
