// Package web serves the doorbell HTTP API and the status page.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/sweeney/doorbell/internal/status"
	"github.com/sweeney/doorbell/internal/subscription"
)

// Options configures the HTTP server.
type Options struct {
	Addr             string
	CORSAllowOrigins []string
	// RateLimitRequests per RateLimitWindow per client IP on /api; 0 disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// Deps are the collaborators the handlers use.
type Deps struct {
	Store          subscription.Store
	Tracker        *status.Tracker
	VAPIDPublicKey string
	// Mock, when set, enables POST /api/mock/button/{value}.
	Mock func(pressed bool) error
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	deps       Deps
}

// New creates a Server listening on opts.Addr.
func New(opts Options, deps Deps) *Server {
	s := &Server{deps: deps}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	c := corslib.New(corslib.Options{
		AllowedOrigins: opts.CORSAllowOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleStatus)

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitRequests > 0 {
			r.Use(rateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
		}

		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/vapid", s.handleVAPID)

		r.Route("/subscription", func(r chi.Router) {
			r.Post("/subscribe", s.handleSubscribe)
			r.Post("/unsubscribe", s.handleUnsubscribe)
		})

		if s.deps.Mock != nil {
			r.Post("/mock/button/{value}", s.handleMockButton)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
