// Package router sets up all HTTP routes and middleware chains for the
// artshift API. Routes are split into the session-gated API, the edge
// worker endpoint and public utility routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"artshift/internal/handlers"
	"artshift/internal/middleware"
)

// Deps holds everything the router wires together. Optional fields may be
// left nil.
type Deps struct {
	Sessions    middleware.SessionGetter
	Generate    *handlers.Generate
	Download    http.Handler
	Metrics     http.Handler            // optional, serves /metrics
	HTTPMetrics middleware.HTTPRecorder // optional
	RateLimiter *middleware.RateLimiter // optional, applied to generate routes
	CORSOrigins []string
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	if d.HTTPMetrics != nil {
		r.Use(middleware.Metrics(d.HTTPMetrics))
	}
	r.Use(middleware.SecureHeaders)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", handlers.Health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	limit := func(h http.HandlerFunc) http.Handler {
		if d.RateLimiter == nil {
			return h
		}
		return d.RateLimiter.Middleware(h)
	}

	r.Route("/api", func(r chi.Router) {
		// Edge worker: no session, permissive CORS, 404 for everything else.
		r.Route("/worker", func(r chi.Router) {
			r.Use(middleware.CORS(d.CORSOrigins))
			r.NotFound(handlers.NotFound)
			r.MethodNotAllowed(handlers.NotFound)

			r.Method(http.MethodPost, "/generate", limit(d.Generate.WorkerGenerate))
			r.Options("/generate", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.LoadSession(d.Sessions))
			r.Use(middleware.RequireAuth)

			r.Method(http.MethodPost, "/generate", limit(d.Generate.Generate))
			r.Get("/generations", d.Generate.History)
		})

		r.Method(http.MethodGet, "/download", d.Download)
	})

	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusMethodNotAllowed)
	w.Write([]byte(`{"error":"Method not allowed"}`))
}
