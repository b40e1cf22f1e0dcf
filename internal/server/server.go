// Package server exposes extraction over HTTP for the tracker's front end.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/Zareix/fictracker/internal/extractor"
	"github.com/Zareix/fictracker/internal/fanfic"
)

// Extractor is the total extraction surface the handlers call.
type Extractor interface {
	ExtractFanficData(ctx context.Context, rawURL string) fanfic.Fanfic
	ExtractFanficChapters(ctx context.Context, rawURL string) []fanfic.Chapter
	Sites() []extractor.SiteInfo
}

// Server wraps the chi router and the http.Server.
type Server struct {
	httpServer *http.Server
	router     chi.Router
}

// New builds the router with its middleware chain.
func New(ex Extractor, addr string) *Server {
	h := &handlers{ex: ex}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)

	r.Get("/healthz", h.health)
	r.Route("/api", func(api chi.Router) {
		api.Get("/sites", h.sites)
		api.Post("/fanfics/extract", h.extract)
		api.Post("/fanfics/chapters", h.chapters)
	})

	return &Server{
		router: r,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// extraction of a long work waits on several upstream fetches
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  2 * time.Minute,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
