// Package httpapi exposes the fleet's control plane over HTTP: status,
// tool listing, lifecycle control, and tool dispatch, plus Kubernetes-style
// health probes and a Prometheus /metrics endpoint (grounded on the
// teacher's cmd/server/main.go HTTP bootstrap).
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mcpgateway/internal/config"
	"mcpgateway/internal/fleet"
	"mcpgateway/internal/metrics"
)

// Server wraps an *http.Server bound to a Fleet, plus a channel the kill
// operation signals so main can drive graceful shutdown.
type Server struct {
	http   *http.Server
	fleet  *fleet.Fleet
	killCh chan struct{}
}

// New builds the control-plane server. It does not start listening.
func New(cfg *config.AppConfig, f *fleet.Fleet) *Server {
	s := &Server{fleet: f, killCh: make(chan struct{}, 1)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /list_tools", s.handleListTools)
	mux.HandleFunc("POST /start/{name}", s.handleStart)
	mux.HandleFunc("POST /stop/{name}", s.handleStop)
	mux.HandleFunc("POST /call_tool", s.handleCallTool)
	mux.HandleFunc("POST /kill", s.handleKill)
	mux.HandleFunc("GET /health/live", s.handleLive)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      withCORS(instrument(mux)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// ListenAndServe blocks, serving until Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("control plane listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// KillRequested fires once a client has called POST /kill.
func (s *Server) KillRequested() <-chan struct{} {
	return s.killCh
}

// statusRecorder captures the status code written so instrument can label
// mcp_gateway_http_requests_total by outcome.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(r.Pattern, fmt.Sprintf("%d", rec.status)).Inc()
	})
}
