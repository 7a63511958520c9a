package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omnistrate-community/resource-scheduler/internal/metrics"
	"github.com/omnistrate-community/resource-scheduler/internal/readiness"
	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

const maxRequestBytes = 1 << 20

// Executor runs lifecycle actions.
type Executor interface {
	Execute(ctx context.Context, req resource.ActionRequest) resource.Response
}

// ReadinessChecker reports the database readiness verdict.
type ReadinessChecker interface {
	Check(ctx context.Context) (resource.Availability, error)
}

type Server struct {
	executor Executor
	checker  ReadinessChecker
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

func NewServer(executor Executor, checker ReadinessChecker, m *metrics.Metrics, log zerolog.Logger) *Server {
	return &Server{
		executor: executor,
		checker:  checker,
		metrics:  m,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// Handler returns the routes of the scheduler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.invokeHandler)
	mux.HandleFunc("/invoke", s.invokeHandler)
	mux.HandleFunc("/readiness", s.readinessHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port string) error {
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("port", port).Msg("Starting resource scheduler")
		s.log.Info().Msg("Available endpoints:")
		s.log.Info().Msg("  POST /invoke - Start or stop resources")
		s.log.Info().Msg("  GET /readiness - RDS readiness verdict")
		s.log.Info().Msg("  GET /health - Health check")
		s.log.Info().Msg("  GET /metrics - Prometheus metrics")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server failed to start")
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "error during shutdown")
	}
	s.log.Info().Msg("Resource scheduler stopped")
	return nil
}

func (s *Server) invokeHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/invoke" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req resource.ActionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.log.Warn().Err(err).Msg("Invalid request body")
		writeJSON(w, http.StatusBadRequest, resource.Response{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("Invalid JSON: %v", err),
		})
		return
	}

	resp := s.executor.Execute(r.Context(), req)
	writeJSON(w, resp.StatusCode, resp)
}

func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	verdict, err := s.checker.Check(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to check RDS readiness")
		writeJSON(w, http.StatusInternalServerError, resource.Response{
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("Failed to check RDS readiness: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, readiness.Response(verdict))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"healthy","service":"resource-scheduler"}`)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
