// Package health exposes the engine's HTTP surface: liveness and readiness
// probes, Prometheus metrics behind a bearer key, and the intent intake
// endpoint.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sisyphus-fi/tempo-engine/pkg/chain"
	"github.com/sisyphus-fi/tempo-engine/pkg/engine"
	"github.com/sisyphus-fi/tempo-engine/pkg/logger"
	"github.com/sisyphus-fi/tempo-engine/pkg/models"
)

// Server is the engine's HTTP front end.
type Server struct {
	engine     *engine.Engine
	backend    chain.Backend
	metricsKey string
	logger     logger.Logger
	httpServer *http.Server
}

// NewServer creates the HTTP server on the given port. metricsKey, when
// non-empty, is required as a bearer token on /metrics.
func NewServer(port int, eng *engine.Engine, backend chain.Backend, metricsKey string, log logger.Logger) *Server {
	s := &Server{
		engine:     eng,
		backend:    backend,
		metricsKey: metricsKey,
		logger:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", s.requireKey(promhttp.Handler()))
	mux.HandleFunc("/v1/actions", s.handleAction)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %v", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.metricsKey != "" && r.Header.Get("Authorization") != "Bearer "+s.metricsKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReady probes the RPC endpoint; the engine is not ready to execute
// actions when the chain is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if _, err := s.backend.BlockNumber(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "unreachable", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type actionResponse struct {
	Result  interface{} `json:"result,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// handleAction accepts one raw intent object and executes it.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeJSON(w, http.StatusBadRequest, actionResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	result, err := s.engine.ExecuteRaw(r.Context(), raw)
	if err != nil {
		status := http.StatusBadGateway
		var validationErr *models.ValidationError
		var resolutionErr *models.ResolutionError
		if errors.As(err, &validationErr) {
			status = http.StatusBadRequest
		} else if errors.As(err, &resolutionErr) {
			status = http.StatusNotFound
		}
		// A partial result still reaches the caller; completed transfers
		// are final even when the action as a whole failed.
		s.writeJSON(w, status, actionResponse{Result: result, Error: err.Error()})
		return
	}

	if result == nil {
		s.writeJSON(w, http.StatusOK, actionResponse{Message: "no actionable intent"})
		return
	}
	s.writeJSON(w, http.StatusOK, actionResponse{Result: result})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload actionResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}
