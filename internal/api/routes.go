package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/inductor-io/inductor/internal/api/middleware"
	"github.com/inductor-io/inductor/internal/metrics"
)

// setupRoutes registers every HTTP route of the command surface.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/decisions/generate", s.withIdempotency(s.handleGenerateDecision))

	mux.HandleFunc("POST /api/v1/optimize", s.withIdempotency(s.handleOptimize))
	mux.HandleFunc("GET /api/v1/optimize/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/v1/optimize/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /api/v1/optimize/runs/{id}/cancel", s.handleCancelRun)

	mux.HandleFunc("POST /api/v1/what-if", s.withIdempotency(s.handleWhatIf))
	mux.HandleFunc("GET /api/v1/what-if/{id}", s.handleGetWhatIf)

	mux.HandleFunc("POST /api/v1/status/sweep", s.handleSweep)

	mux.HandleFunc("GET /api/v1/events/subscribe", s.handleSubscribe)

	mux.HandleFunc("/", s.handleNotFound)
}

// writeJSON marshals the payload and writes it with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
}

// decodeJSON reads a size-capped JSON body into dst. An empty body leaves
// dst at its zero value so commands can run with defaults.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}

	if !hasJSONContentType(r.Header.Get("Content-Type")) && r.ContentLength > 0 {
		return errContentType
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if err.Error() == "EOF" {
			return nil
		}

		return err
	}

	return nil
}

// handleHealth returns service status, uptime, and the current event seq.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string

	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	var seq uint64
	if s.bus != nil {
		seq = s.bus.CurrentSeq()
	}

	s.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:      "healthy",
		ServiceName: "inductor",
		Version:     Version,
		Uptime:      uptime,
		EventSeq:    seq,
	})
}

// handleNotFound returns RFC 7807 compliant 404 responses.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType allows charset parameters after application/json.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
