package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Status is the diagnostics snapshot served on /status.
type Status struct {
	Evaluator   string    `json:"evaluator"`
	Cycles      int       `json:"cycles"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitempty"`
	Profiles    int       `json:"profiles"`
}

// StatusFunc produces the current status snapshot.
type StatusFunc func() Status

// Server is the local diagnostics HTTP server: health, status, and
// prometheus metrics. Not meant to be exposed beyond localhost.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// NewServer creates the diagnostics server.
func NewServer(addr string, status StatusFunc, registry *prometheus.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			logger.Error("failed to encode status", zap.Error(err))
		}
	})

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start() {
	s.logger.Info("diagnostics server listening", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("diagnostics server failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
