// Package api serves the operational HTTP endpoints: /healthz and
// /metrics. It is optional and disabled by default; the transfer protocol
// never rides on HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeffvan302/fileharbor/internal/logger"
)

// Health reports the server's liveness payload.
type Health struct {
	Status    string `json:"status"`
	Sessions  int    `json:"sessions"`
	Libraries int    `json:"libraries"`
}

// HealthSource supplies the current health payload.
type HealthSource func() Health

// Server is the operational HTTP listener.
type Server struct {
	httpServer *http.Server
}

// New builds the operational listener on the given port, serving /metrics
// from reg and /healthz from source.
func New(port int, reg *prometheus.Registry, source HealthSource) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(source()); err != nil {
			http.Error(w, "encode health", http.StatusInternalServerError)
		}
	})
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Serve blocks until the listener fails or Shutdown is called.
func (s *Server) Serve() error {
	logger.Info("metrics listener started", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
