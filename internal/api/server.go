// Package api serves the HTTP endpoints for matching, scraping and profile analysis.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/spigell/rfp-matcher/internal/ai"
	"github.com/spigell/rfp-matcher/internal/rfp"
	"github.com/spigell/rfp-matcher/internal/store"
)

type Matcher interface {
	FindMatches(ctx context.Context, userID string, limit int) []rfp.MatchResult
}

type Scraper interface {
	Run(ctx context.Context) (*rfp.Listings, error)
}

type Deps struct {
	Matcher    Matcher
	Scraper    Scraper
	Analyzer   ai.ProfileAnalyzer
	Profiles   store.ProfileStore
	Tokens     *Tokens
	CronSecret string
	MatchLimit int
	Logger     *zap.Logger
}

type Server struct {
	addr   string
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: deps.Logger,
	}
}

// NewRouter mounts every route with the shared middleware stack.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/match-rfps", h.matchRFPs)
		r.Get("/scrape-rfps", h.scrapeRFPs)
		r.Post("/scrape-rfps", h.scrapeRFPs)
		r.Post("/profile/analyze", h.analyzeProfile)
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("http shutting down")
	return s.srv.Shutdown(shutdownCtx)
}
