package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aetherless/aetherless/pkg/dataplane"
)

// StatsReader reads and clears the active backend's counters.
type StatsReader interface {
	ReadStats() (dataplane.Counters, error)
	ClearStats() error
}

// PortSyncer pushes redirect table changes into the kernel map. It is
// nil when the software backend is active.
type PortSyncer interface {
	SyncPort(port uint16, val dataplane.PortValue) error
	DeletePort(port uint16) error
}

// Config configures the API server.
type Config struct {
	Addr      string
	Table     *dataplane.Table
	Stats     StatsReader
	Sync      PortSyncer
	Shards    func() []dataplane.Counters // per-worker breakdown, nil for XDP
	Policy    dataplane.Policy
	Backend   string
	Interface string
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	table      *dataplane.Table
	stats      StatsReader
	sync       PortSyncer
	shards     func() []dataplane.Counters
	policy     dataplane.Policy
	backend    string
	iface      string
	startTime  time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		table:     cfg.Table,
		stats:     cfg.Stats,
		sync:      cfg.Sync,
		shards:    cfg.Shards,
		policy:    cfg.Policy,
		backend:   cfg.Backend,
		iface:     cfg.Interface,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Prometheus metrics with isolated registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(s))
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// REST API v1
	mux.HandleFunc("GET /api/v1/status", s.statusHandler)
	mux.HandleFunc("GET /api/v1/statistics", s.statsHandler)
	mux.HandleFunc("POST /api/v1/statistics/clear", s.clearStatsHandler)
	mux.HandleFunc("GET /api/v1/ports", s.listPortsHandler)
	mux.HandleFunc("POST /api/v1/ports", s.registerPortHandler)
	mux.HandleFunc("DELETE /api/v1/ports/{port}", s.unregisterPortHandler)

	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	return s
}

// Handler exposes the route mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
