package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"storyteller/internal/http/handlers"
	"storyteller/internal/middleware"
)

// Options tunes the cross-cutting middleware.
type Options struct {
	AllowedOrigins []string
	RateLimit      int
	RatePer        time.Duration
	// StaticDir serves the filesystem blob store under /static when set.
	StaticDir      string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/v1/stories", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(middleware.RateLimit(opts.RateLimit, opts.RatePer))
		}
		r.Post("/", app.SubmitStory)
		r.Get("/{id}/status", app.StoryStatus)
	})

	return r
}
