// Package server exposes the data layer over HTTP: liveness and
// readiness probes, the delta-sync endpoint, the webhook dispatcher
// mount, and the WebSocket upgrade path.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// ReadinessCheck is one named gate of the /ready endpoint.
type ReadinessCheck struct {
	Name  string
	Check func() bool
}

// Config wires the server's collaborators.
type Config struct {
	Addr string

	Sync      http.Handler // /_sync
	Webhooks  http.Handler // /_webhooks/
	WebSocket http.Handler // /ws
	Readiness []ReadinessCheck
}

// Server is the HTTP front of the runtime.
type Server struct {
	mux        *http.ServeMux
	httpServer *http.Server
	addr       string
	readiness  []ReadinessCheck

	mu       sync.RWMutex
	listener net.Listener
}

// New builds a server from the given config.
func New(cfg Config) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		addr:      cfg.Addr,
		readiness: cfg.Readiness,
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	if cfg.Sync != nil {
		s.mux.Handle("/_sync", cfg.Sync)
	}
	if cfg.Webhooks != nil {
		s.mux.Handle("/_webhooks/", cfg.Webhooks)
	}
	if cfg.WebSocket != nil {
		s.mux.Handle("/ws", cfg.WebSocket)
	}
	return s
}

// Handler returns the full handler chain (CORS wrapped) for use with
// custom servers and tests.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(listener)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the bound address once Start has begun listening.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed: use GET")
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

// handleReady handles GET /ready: 200 when every named check passes,
// 503 otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed: use GET")
		return
	}

	checks := make(map[string]bool, len(s.readiness))
	ready := true
	for _, c := range s.readiness {
		ok := c.Check()
		checks[c.Name] = ok
		if !ok {
			ready = false
		}
	}

	status := "ready"
	if !ready {
		status = "not ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339Nano),
	})
}

// corsMiddleware applies the permissive CORS policy every endpoint
// shares and short-circuits preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
