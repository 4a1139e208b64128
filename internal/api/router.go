// Package api exposes audiobook jobs, voices and audio handles over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/audiobook/internal/api/handlers"
	"github.com/nikhilbhutani/audiobook/internal/api/middleware"
	"github.com/nikhilbhutani/audiobook/internal/auth"
	"github.com/nikhilbhutani/audiobook/internal/config"
	"github.com/nikhilbhutani/audiobook/internal/handle"
	"github.com/nikhilbhutani/audiobook/internal/job"
	"github.com/nikhilbhutani/audiobook/internal/metrics"
)

// Deps are the collaborators the router wires into handlers. DB and Redis
// are optional and only used for readiness checks.
type Deps struct {
	Config  *config.Config
	Jobs    *job.Service
	Handles handle.Registry
	Auth    *auth.Authenticator
	Limiter *middleware.RateLimiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	DB      *pgxpool.Pool
	Redis   *redis.Client
}

type Router struct {
	mux  *chi.Mux
	deps Deps
}

func NewRouter(deps Deps) *Router {
	return &Router{mux: chi.NewRouter(), deps: deps}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux
	d := rt.deps

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(d.Logger, d.Metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(d.Config.Server.CORSOrigins))
	if d.Limiter != nil {
		r.Use(d.Limiter.Limit)
	}

	health := handlers.NewHealthHandler(d.DB, d.Redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Handle("/metrics", d.Metrics.Handler())

	jobH := handlers.NewJobHandler(d.Jobs, d.Logger)
	voiceH := handlers.NewVoiceHandler(d.Jobs)
	audioH := handlers.NewAudioHandler(d.Jobs, d.Handles, d.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		// Handle IDs are unguessable, so playback links work without credentials.
		r.Get("/audio/{handle}", audioH.Get)

		r.Group(func(r chi.Router) {
			r.Use(d.Auth.Authenticate)

			r.Get("/voices", voiceH.List)
			r.Get("/voices/{voice}/preview", voiceH.Preview)

			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", jobH.Create)
				r.Get("/", jobH.List)
				r.Get("/{id}", jobH.Get)
				r.Patch("/{id}", jobH.Update)
				r.Delete("/{id}", jobH.Delete)
				r.Post("/{id}/document", jobH.Upload)
				r.Post("/{id}/generate", jobH.Generate)
				r.Delete("/{id}/audio", jobH.ReleaseAudio)
			})

			r.Delete("/audio/{handle}", audioH.Revoke)
			r.Post("/transcode", audioH.Transcode)
		})
	})

	return r
}
