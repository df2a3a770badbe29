package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/assetgatehq/assetgate/internal/audit"
	"github.com/assetgatehq/assetgate/internal/config"
	"github.com/assetgatehq/assetgate/internal/metrics"
	"github.com/assetgatehq/assetgate/internal/rules"
	"github.com/assetgatehq/assetgate/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

type Server struct {
	cfg   *config.Config
	store *storage.Store
	rules *rules.Rules
	audit *audit.Store

	rateLimitMu  sync.Mutex
	rateLimiters map[string]*rateLimiterEntry
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithAudit attaches a rejection audit trail.
func WithAudit(a *audit.Store) ServerOption {
	return func(s *Server) {
		s.audit = a
	}
}

func New(cfg *config.Config, store *storage.Store, opts ...ServerOption) (*Server, error) {
	serveRules, err := rules.New(cfg.Serve.Allow, cfg.Serve.Deny)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:          cfg,
		store:        store,
		rules:        serveRules,
		rateLimiters: make(map[string]*rateLimiterEntry),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.audit != nil {
		metrics.Register(srv.audit)
	} else {
		metrics.Register(nil)
	}

	return srv, nil
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.With(s.rateLimitMiddleware).Get("/assets/*", s.handleGetAsset)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.APIAuth.Token != "" {
			r.Use(s.apiAuthMiddleware)
		}
		r.Get("/health", s.handleHealth)
		r.With(s.rateLimitMiddleware).Post("/validate", s.handleValidate)
		r.Get("/rejections", s.handleRejections)

		r.Group(func(r chi.Router) {
			r.Use(s.writeAuthMiddleware)
			r.With(s.rateLimitMiddleware).Post("/assets/{name}", s.handleUploadAsset)
			r.With(s.rateLimitMiddleware).Post("/assets/{name}/promote", s.handlePromoteAsset)
		})
	})

	return r
}
