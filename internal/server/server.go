// Package server exposes the ads listings over HTTP.
package server

import (
	"context"
	"net/http"

	"github.com/Sternrassler/meta-ads-proxy/pkg/ads"
	"github.com/Sternrassler/meta-ads-proxy/pkg/credentials"
	"github.com/Sternrassler/meta-ads-proxy/pkg/logging"
	"github.com/Sternrassler/meta-ads-proxy/pkg/metrics"
	"github.com/Sternrassler/meta-ads-proxy/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// AdsService is the listing surface served by the proxy. *ads.Service
// implements it.
type AdsService interface {
	ListAdAccounts(ctx context.Context, fields []string) ([]json.RawMessage, error)
	ListCampaigns(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error)
	ListAdSets(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error)
	ListAds(ctx context.Context, accountID string, fields []string) ([]json.RawMessage, error)
	AccountInsights(ctx context.Context, accountID string, q ads.InsightsQuery) ([]json.RawMessage, error)
}

// Config holds the server dependencies.
type Config struct {
	// Service serves the listings (REQUIRED).
	Service AdsService

	// Credentials backs the /token endpoints (REQUIRED).
	Credentials credentials.Store

	// Usage is reported on /health when set.
	Usage *ratelimit.Tracker

	// StaticDir is served at "/" when set.
	StaticDir string
}

// Server is the HTTP front of the proxy.
type Server struct {
	service     AdsService
	credentials credentials.Store
	usage       *ratelimit.Tracker
	staticDir   string
	logger      zerolog.Logger
}

// New creates a server. It panics when a required dependency is missing.
func New(cfg Config) *Server {
	if cfg.Service == nil {
		panic("server: Service is required")
	}
	if cfg.Credentials == nil {
		panic("server: Credentials is required")
	}
	return &Server{
		service:     cfg.Service,
		credentials: cfg.Credentials,
		usage:       cfg.Usage,
		staticDir:   cfg.StaticDir,
		logger:      logging.NewLogger(logging.ComponentHTTPServer),
	}
}

// Router returns the HTTP handler with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)

	r.Get("/token", s.handleGetToken)
	r.Post("/token", s.handleSetToken)

	r.Get("/adaccounts", s.handleAdAccounts)
	r.Get("/adaccounts/{accountID}/campaigns", s.handleCampaigns)
	r.Get("/adaccounts/{accountID}/adsets", s.handleAdSets)
	r.Get("/adaccounts/{accountID}/ads", s.handleAds)
	r.Get("/adaccounts/{accountID}/insights", s.handleInsights)

	r.Handle("/metrics", metrics.Handler())

	if s.staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(s.staticDir)))
	}

	return r
}
