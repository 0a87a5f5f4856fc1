// Package api is the HTTP front end of the qualification scorer and the
// typed client the backtest jobs use to reach it.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"leadscore-backtest/cache"
	"leadscore-backtest/config"
	"leadscore-backtest/logger"
	"leadscore-backtest/metrics"
	"leadscore-backtest/qualification"
)

// Server handles scorer HTTP requests
type Server struct {
	scorer  *qualification.Scorer
	fetcher WebsiteFetcher
	cache   *cache.WebsiteCache
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     config.ServerConfig
	now     func() time.Time
}

// NewServer creates a new API server instance. cache and metrics may be nil.
func NewServer(cfg config.ServerConfig, scorer *qualification.Scorer, fetcher WebsiteFetcher,
	websiteCache *cache.WebsiteCache, m *metrics.Metrics, log *zap.Logger) *Server {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 50
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 5
	}
	return &Server{
		scorer:  scorer,
		fetcher: fetcher,
		cache:   websiteCache,
		metrics: m,
		log:     logger.OrNop(log).Named("api"),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Handler builds the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /qualify", s.handleQualifyDomain)
	mux.HandleFunc("POST /qualify/domain", s.handleQualifyDomain)
	mux.HandleFunc("POST /qualify/text", s.handleQualifyText)
	mux.HandleFunc("POST /qualify/batch", s.handleQualifyBatch)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /model/info", s.handleModelInfo)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.corsMiddleware(s.requestIDMiddleware(s.loggingMiddleware(mux)))
}

// Start serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("scorer API starting", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("scorer API stopped")
	return nil
}

// Handlers are distributed across multiple files:
// - handlers_qualify.go: domain, text and batch qualification
// - handlers_info.go: health and model info
