// Package http exposes the tool operations plus health, readiness, and
// metrics endpoints over HTTP.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
	"github.com/couchcryptid/typhoon-info-service/internal/service"
)

// Query dates without an explicit zone are interpreted as Korea Standard
// Time, matching the upstream bulletin clock.
var kst = time.FixedZone("KST", 9*60*60)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ToolService is the tool layer the server fronts.
type ToolService interface {
	GetLiveSummary(ctx context.Context, location string) (*service.LiveSummary, error)
	SearchPastTyphoons(ctx context.Context, query string, year *int) (*service.SearchResult, error)
	GetPastTyphoonTrack(ctx context.Context, stormID int, from, to *time.Time) (*service.TrackResult, error)
}

// Server exposes the tool routes plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	svc        ToolService
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, svc ToolService, ready ReadinessChecker, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/live-summary", s.handleLiveSummary)
	mux.HandleFunc("GET /v1/typhoons/search", s.handleSearch)
	mux.HandleFunc("GET /v1/typhoons/{seq}/track", s.handleTrack)

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

func (s *Server) handleLiveSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.GetLiveSummary(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	markStale(w, sum.Stale)
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var year *int
	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, &domain.ValidationError{Field: "year", Reason: "must be an integer"})
			return
		}
		year = &v
	}

	res, err := s.svc.SearchPastTyphoons(r.Context(), q.Get("q"), year)
	if err != nil {
		s.writeError(w, err)
		return
	}
	markStale(w, res.Stale)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "seq", Reason: "must be an integer storm sequence"})
		return
	}

	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"), "from")
	if err != nil {
		s.writeError(w, err)
		return
	}
	to, err := parseTimeParam(q.Get("to"), "to")
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := s.svc.GetPastTyphoonTrack(r.Context(), seq, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}
	markStale(w, res.Stale)
	writeJSON(w, http.StatusOK, res)
}

// parseTimeParam accepts RFC 3339 timestamps or bare dates, the latter
// interpreted in KST.
func parseTimeParam(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, kst); err == nil {
		return &t, nil
	}
	return nil, &domain.ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("cannot parse %q as RFC 3339 or YYYY-MM-DD", raw),
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		validation  *domain.ValidationError
		notFound    *domain.NotFoundError
		unavailable *domain.UpstreamUnavailableError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": notFound.Error()})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "upstream unavailable"})
	default:
		s.logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// markStale flags responses served from an expired cache entry after an
// upstream failure.
func markStale(w http.ResponseWriter, stale bool) {
	if stale {
		w.Header().Set("X-Data-Stale", "true")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
