package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vidserver/internal/http/handlers"
	"vidserver/internal/infra"
	"vidserver/internal/middleware"
)

// NewRouter wires the middleware chain and the API surface.
func NewRouter(cfg *infra.Config, app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.I18N(cfg.DefaultLocale, lookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/prompts", func(r chi.Router) {
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/enhance", app.PromptsEnhance)
	})

	r.Route("/v1/videos", func(r chi.Router) {
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/generate", app.VideosGenerate)
		r.Get("/*", app.VideosDownload)
	})

	return r
}
