package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/cyclone-impact-etl/internal/domain"
	"github.com/couchcryptid/cyclone-impact-etl/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RunController starts runs and reports on them.
type RunController interface {
	Start(ctx context.Context, params pipeline.RunParams) error
	Latest() (domain.RunResult, bool)
	Running() bool
	LastError() error
}

// ReadinessChecks is ready when every checker is.
type ReadinessChecks []sharedobs.ReadinessChecker

// CheckReadiness returns the first checker error.
func (c ReadinessChecks) CheckReadiness(ctx context.Context) error {
	for _, checker := range c {
		if err := checker.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Server exposes health, readiness, metrics and run endpoints.
type Server struct {
	httpServer *http.Server
	runs       RunController
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// POST /runs and GET /runs/latest routes.
func NewServer(addr string, runs RunController, ready sharedobs.ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		runs:   runs,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /runs", s.handleStartRun)
	mux.HandleFunc("GET /runs/latest", s.handleLatestRun)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// startRunRequest is the optional body of POST /runs.
type startRunRequest struct {
	MinStartYear *int `json:"min_start_year"`
}

func decodeStartRun(r *http.Request) (pipeline.RunParams, error) {
	var req startRunRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return pipeline.RunParams{}, fmt.Errorf("invalid run request: %w", err)
	}
	return pipeline.RunParams{MinStartYear: req.MinStartYear}, nil
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	params, err := decodeStartRun(r)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	err = s.runs.Start(r.Context(), params)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		sharedobs.WriteJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		s.logger.Error("start run", "error", err)
		sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

type latestRunResponse struct {
	Running   bool               `json:"running"`
	LastError string             `json:"last_error,omitempty"`
	Run       *domain.RunSummary `json:"run"`
}

func (s *Server) handleLatestRun(w http.ResponseWriter, _ *http.Request) {
	resp := latestRunResponse{Running: s.runs.Running()}
	if err := s.runs.LastError(); err != nil {
		resp.LastError = err.Error()
	}

	latest, ok := s.runs.Latest()
	if !ok {
		sharedobs.WriteJSON(w, http.StatusNotFound, resp)
		return
	}
	summary := latest.Summary()
	resp.Run = &summary
	sharedobs.WriteJSON(w, http.StatusOK, resp)
}
