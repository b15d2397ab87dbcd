// Package gateway exposes the webhook endpoint and health check over HTTP.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nextlevelbuilder/hookrelay/internal/config"
)

// HealthFunc returns extra detail merged into the /health response.
type HealthFunc func() map[string]any

// Server is the relay's HTTP front end.
type Server struct {
	cfg     config.GatewayConfig
	webhook http.Handler
	health  HealthFunc
	started time.Time

	mu         sync.Mutex
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a server routing cfg.WebhookPath to webhook.
func NewServer(cfg config.GatewayConfig, webhook http.Handler, health HealthFunc) *Server {
	return &Server{cfg: cfg, webhook: webhook, health: health, started: time.Now()}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.Handle(s.cfg.WebhookPath, s.webhook)
	mux.HandleFunc("/health", s.handleHealth)

	s.mux = mux
	return mux
}

// Start listens on the configured address and serves until ctx is done
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	mux := s.BuildMux()

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	slog.Info("gateway starting", "addr", ln.Addr().String(), "webhook_path", s.cfg.WebhookPath)

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Grace())
		defer cancel()
		srv.Shutdown(shutdownCtx)
	})
	defer stop()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleHealth returns a JSON health report.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body := map[string]any{}
	if s.health != nil {
		for k, v := range s.health() {
			body[k] = v
		}
	}
	body["status"] = "ok"
	body["uptime_seconds"] = int64(time.Since(s.started).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}
