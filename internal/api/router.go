package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

// NewRouter builds and returns the Chi router with all routes configured.
// The health endpoint is always unauthenticated; forecast routes require
// bearer auth only when token is non-empty. rateLimit is requests per minute
// per IP, 0 disables it. db may be nil.
func NewRouter(handlers *Handlers, token string, rateLimit int, db dbPinger, log *slog.Logger) *chi.Mux {
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	if rateLimit > 0 {
		r.Use(httprate.LimitByIP(rateLimit, time.Minute))
	}

	r.Get("/api/v1/health", HealthHandlerFunc(db, log))

	r.Group(func(r chi.Router) {
		if token != "" {
			r.Use(BearerAuth(token))
		}
		r.Get("/api/v1/forecast", handlers.GetForecast)
		r.Post("/api/v1/forecast", handlers.PostForecast)
		r.Get("/api/previsao", handlers.GetForecast)
	})

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
