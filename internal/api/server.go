package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
	"github.com/JakeFAU/listing-crawler/internal/metrics"
)

// Scraper triggers crawls. *crawler.Service implements it.
type Scraper interface {
	ScrapeJobs(ctx context.Context, opts crawler.CrawlOptions) (crawler.ScrapeReport, error)
	ScrapeNewJobs(ctx context.Context, start int) (crawler.ScrapeReport, error)
	ScrapeNews(ctx context.Context) (crawler.ScrapeReport, error)
}

// Options tune the server.
type Options struct {
	// RequestTimeout bounds every request; crawls run inside the request.
	RequestTimeout time.Duration
	// DefaultMaxPages applies to POST /scrape when max_pages is absent.
	DefaultMaxPages int
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

const (
	defaultRequestTimeout = 10 * time.Minute
	readyTimeout          = 2 * time.Second
)

// Server wires HTTP handlers to the crawl service and record store.
type Server struct {
	router  chi.Router
	scraper Scraper
	store   crawler.RecordStore
	opts    Options
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(scraper Scraper, store crawler.RecordStore, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		scraper: scraper,
		store:   store,
		opts:    opts,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(opts.RequestTimeout))

		r.Get("/", s.home)
		r.Post("/scrape", s.scrapeJobs)
		r.Post("/scrapenew", s.scrapeNewJobs)
		r.Get("/jobs", s.listRecords(crawler.KindJob))
		r.Get("/jobs/{id}", s.getRecord(crawler.KindJob))

		r.Route("/news", func(r chi.Router) {
			r.Post("/scrape", s.scrapeNews)
			r.Get("/", s.listRecords(crawler.KindNews))
			r.Get("/{id}", s.getRecord(crawler.KindNews))
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Listing crawler API running"})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
