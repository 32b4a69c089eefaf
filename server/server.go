package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ValentinKolb/sKV/lib/smartstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Version of the service, reported by the root endpoint.
const Version = "0.1.0"

// Server exposes a SmartStore over a REST API. It owns the router and the
// change notifier but not the store: the caller opens and closes the
// database.
type Server struct {
	cfg      Config
	logger   *zap.Logger
	db       *smartstore.SmartStore
	router   *mux.Router
	notifier *Notifier
}

// NewServer wires the routes and, if configured, connects the change
// notifier.
func NewServer(db *smartstore.SmartStore, cfg Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		router: mux.NewRouter(),
	}

	if cfg.NATSUrl != "" {
		notifier, err := NewNotifier(cfg.NATSUrl, cfg.NATSSubject, logger)
		if err != nil {
			return nil, err
		}
		s.notifier = notifier
	}

	s.routes()
	return s, nil
}

// Router returns the handler, e.g. for tests running against an
// httptest server.
func (s *Server) Router() http.Handler {
	return s.router
}

// routes registers all endpoints. Service level endpoints live on the
// root router, the data and management API under /api/v1. Rate limiting
// only guards the API: health probes and metric scrapes must not be
// rejected under load.
func (s *Server) routes() {
	s.router.Use(s.recoverMiddleware, s.logMiddleware, s.metricsMiddleware)

	s.router.HandleFunc("/", s.handleRoot()).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth()).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	if s.cfg.RateLimit > 0 {
		limiter := rate.NewLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst)
		api.Use(s.rateLimitMiddleware(limiter))
	}

	// key-value API
	api.HandleFunc("/keys", s.handleListKeys()).Methods("GET")
	api.HandleFunc("/keys", s.handleCreateKey()).Methods("POST")
	api.HandleFunc("/keys/{key}", s.handleGetKey()).Methods("GET")
	api.HandleFunc("/keys/{key}", s.handleUpdateKey()).Methods("PUT")
	api.HandleFunc("/keys/{key}", s.handleDeleteKey()).Methods("DELETE")
	api.HandleFunc("/stats", s.handleStats()).Methods("GET")

	// cache management
	api.HandleFunc("/cache/stats", s.handleCacheStats()).Methods("GET")
	api.HandleFunc("/cache/train", s.handleCacheTrain()).Methods("POST")
	api.HandleFunc("/cache/optimize", s.handleCacheOptimize()).Methods("POST")
	api.HandleFunc("/cache/hot", s.handleCacheHotKeys()).Methods("GET")
	api.HandleFunc("/cache/clear", s.handleCacheClear()).Methods("POST")

	// anomaly management
	api.HandleFunc("/anomalies", s.handleListAnomalies()).Methods("GET")
	api.HandleFunc("/anomalies/check", s.handleAnomalyCheck()).Methods("POST")
	api.HandleFunc("/anomalies/{id}/resolve", s.handleAnomalyResolve()).Methods("POST")

	// archive management
	api.HandleFunc("/archive", s.handleListArchive()).Methods("GET")
	api.HandleFunc("/archive", s.handleArchiveKeys()).Methods("POST")
	api.HandleFunc("/archive/cold", s.handleArchiveCold()).Methods("POST")
	api.HandleFunc("/archive/restore", s.handleArchiveRestore()).Methods("POST")

	// recovery management
	api.HandleFunc("/recovery/checkpoint", s.handleCheckpoint()).Methods("POST")
	api.HandleFunc("/recovery/stats", s.handleRecoveryStats()).Methods("GET")
}

// handleMetrics exposes all collected metrics in Prometheus text format.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	}
}

// Run serves the API until the context is canceled, then shuts down
// gracefully. In-flight requests get ShutdownTimeout to complete, queued
// change notifications are drained before Run returns.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         s.cfg.Endpoint,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("rest server listening", zap.String("endpoint", s.cfg.Endpoint))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down rest server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.notifier.Close()
	return err
}
