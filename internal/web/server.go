// Package web exposes the intake service as a JSON HTTP API for reviewers
// and upload tooling.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/intake/internal/config"
	"github.com/JonMunkholm/intake/internal/core"
	"github.com/JonMunkholm/intake/internal/web/middleware"
)

// AuditReader lists recent audit entries, newest first.
type AuditReader interface {
	ListAudit(ctx context.Context, limit int) ([]core.AuditEntry, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithAuditReader enables GET /api/audit.
func WithAuditReader(a AuditReader) Option {
	return func(s *Server) { s.audit = a }
}

// WithHealthCheck adds a named dependency to /healthz.
func WithHealthCheck(name string, p Pinger) Option {
	return func(s *Server) {
		s.checks = append(s.checks, healthCheck{name: name, pinger: p})
	}
}

type healthCheck struct {
	name   string
	pinger Pinger
}

// Server is the HTTP server for the intake API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	audit   AuditReader
	checks  []healthCheck

	router *chi.Mux
	server *http.Server

	limiters []*middleware.RateLimiter
	done     chan struct{}
	stopOnce sync.Once
}

// NewServer builds the router. A nil cfg uses the service configuration.
func NewServer(service *core.Service, cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = service.Config()
	}
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).Middleware)
	}
	s.router.Use(middleware.APIKeyAuth(s.cfg.Security, "/healthz"))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled && s.cfg.Rate.IngestLimit > 0 {
				r.Use(s.newRateLimiter(s.cfg.Rate.IngestLimit).Middleware)
			}
			r.Post("/ingest", s.handleIngest)
		})

		// Review
		r.Get("/staging", s.handleListStaging)
		r.Get("/staging/{id}", s.handleGetStaging)
		r.Patch("/staging/{id}", s.handleEditStaging)
		r.Post("/staging/transition", s.handleTransition)
		r.Post("/staging/approve", s.handleTransitionTo(core.StatusApproved))
		r.Post("/staging/reject", s.handleTransitionTo(core.StatusRejected))
		r.Post("/staging/delete", s.handleDeleteStaging)

		// Commit
		r.Post("/reconcile", s.handleReconcile)
		r.Get("/duplicates", s.handleListDuplicates)
		r.Post("/duplicates/discard", s.handleDiscardDuplicates)

		// Lookups
		r.Get("/taxonomy", s.handleTaxonomy)
		r.Get("/classify", s.handleClassify)
		r.Get("/variant", s.handleVariant)
		if s.audit != nil {
			r.Get("/audit", s.handleAudit)
		}
	})
}

func (s *Server) newRateLimiter(perMinute int) *middleware.RateLimiter {
	rl := middleware.NewRateLimiter(perMinute, 10*time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	for _, rl := range s.limiters {
		go rl.Run(time.Minute, s.done)
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones. It is
// safe to call from another goroutine than Start, and more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		if s.cfg.Security.EnableCSP {
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v with status. Encoding errors are only logged since
// the header is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err, "request_id", chimw.GetReqID(r.Context()))
	}
}
