// Package api serves the converter over HTTP: synchronous and queued
// conversions, converted documents by digest, and a WebSocket stream of job
// progress.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/FocuswithJustin/vmr2tei/core/cache"
	"github.com/FocuswithJustin/vmr2tei/core/cas"
	"github.com/FocuswithJustin/vmr2tei/internal/logging"
)

// shutdownTimeout bounds how long Start waits for requests and jobs to
// finish.
const shutdownTimeout = 30 * time.Second

// Server is the HTTP API server.
type Server struct {
	cfg       Config
	router    chi.Router
	hub       *Hub
	jobs      *JobStore
	documents *cache.Bytes
	store     *cas.Store
	limiter   *RateLimiter
	started   time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer validates cfg, opens the document store and starts the
// WebSocket hub and job sweeper. Call Close to stop them.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	cfg.setDefaults()

	s := &Server{
		cfg:       cfg,
		hub:       NewHub(),
		jobs:      NewJobStore(cfg.JobTTL),
		documents: cache.New(cache.Config{MaxEntries: cfg.CacheEntries}),
		started:   time.Now(),
	}
	if cfg.OutputDir != "" {
		store, err := cas.NewStore(cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	if cfg.RateLimitRequests > 0 {
		s.limiter = NewRateLimiter(RateLimiterConfig{
			RequestsPerMinute: cfg.RateLimitRequests,
			BurstSize:         cfg.RateLimitBurst,
		})
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.hub.Run(s.ctx)
	go s.sweepJobs(s.ctx, time.Minute)
	s.setupRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logging.RequestLogger)
	r.Use(CORS(s.cfg.AllowedOrigins))
	r.Use(SecurityHeaders)
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
	r.Use(AuthMiddleware(s.cfg.Auth))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" is not allowed here")
	})

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Post("/convert", s.handleConvert)
		r.Get("/documents/{digest}", s.handleDocument)
		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
	})

	s.router = r
}

func (s *Server) sweepJobs(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.jobs.Sweep(); n > 0 {
				logging.Debug("expired jobs removed", "count", n)
			}
		}
	}
}

// Close cancels running jobs, waits for them and stops the background
// loops.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	if s.limiter != nil {
		s.limiter.Close()
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	mode := "permissive"
	if len(s.cfg.AllowedOrigins) > 0 {
		mode = "restricted"
	}
	logging.ServerStartup("rest_api", "http", s.cfg.Addr,
		"auth", s.cfg.Auth.Enabled,
		"cors", mode,
		"rate_limit", s.cfg.RateLimitRequests,
		"output_dir", s.cfg.OutputDir,
		"ntvmr", s.cfg.VMR != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	logging.Info("shutting down", "addr", s.cfg.Addr)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}
