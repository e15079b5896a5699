package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jgbdesk/factorcurve/internal/analysis"
	"github.com/jgbdesk/factorcurve/internal/data"
	"github.com/jgbdesk/factorcurve/internal/factor"
)

const dateLayout = "2006-01-02"

// AnalysisService is the slice of the analyzer the handlers need.
type AnalysisService interface {
	Analyze(ctx context.Context, endDate time.Time, lookbackDays, nComponents int) (*analysis.AnalysisResponse, error)
	Reconstruct(ctx context.Context, targetDate, endDate time.Time, lookbackDays, nComponents int) (*analysis.ReconstructionResponse, error)
	Parameters() analysis.ParameterRanges
	InvalidateAll()
	CacheStats() analysis.CacheStats
}

// Pinger reports data-layer connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers implements the API endpoints.
type Handlers struct {
	service AnalysisService
	pinger  Pinger
	started time.Time
}

// NewHandlers wires the endpoint handlers. pinger may be nil when no
// database health probe is available.
func NewHandlers(service AnalysisService, pinger Pinger) *Handlers {
	return &Handlers{
		service: service,
		pinger:  pinger,
		started: time.Now(),
	}
}

// Analyze handles GET /api/v1/pca/analyze?days=&components=&end_date=.
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	days, components, err := analysisParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	endDate, err := dateParam(r, "end_date", time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := h.service.Analyze(r.Context(), endDate, days, components)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reconstruct handles GET /api/v1/pca/reconstruct?date=&days=&components=&end_date=.
func (h *Handlers) Reconstruct(w http.ResponseWriter, r *http.Request) {
	days, components, err := analysisParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	endDate, err := dateParam(r, "end_date", time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}

	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, r, badParam("date parameter is required"))
		return
	}
	target, err := time.Parse(dateLayout, raw)
	if err != nil {
		writeError(w, r, badParam("date must be YYYY-MM-DD"))
		return
	}

	resp, err := h.service.Reconstruct(r.Context(), target, endDate, days, components)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Parameters handles GET /api/v1/pca/parameters.
func (h *Handlers) Parameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Parameters())
}

// Invalidate handles POST /api/v1/cache/invalidate. Called by the daily
// maintenance job after the upstream data refresh completes.
func (h *Handlers) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.service.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "ok"
	code := http.StatusOK

	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			status, dbStatus = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
	} else {
		dbStatus = "not configured"
	}

	writeJSON(w, code, map[string]any{
		"status":   status,
		"database": dbStatus,
		"cache":    h.service.CacheStats(),
		"uptime":   time.Since(h.started).Truncate(time.Second).String(),
	})
}

func analysisParams(r *http.Request) (days, components int, err error) {
	days, err = intParam(r, "days", 100)
	if err != nil {
		return 0, 0, err
	}
	components, err = intParam(r, "components", 3)
	if err != nil {
		return 0, 0, err
	}
	return days, components, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badParam(name + " must be an integer")
	}
	return v, nil
}

func dateParam(r *http.Request, name string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, badParam(name + " must be YYYY-MM-DD")
	}
	return v, nil
}

func badParam(msg string) error {
	return &paramError{msg: msg}
}

type paramError struct{ msg string }

func (e *paramError) Error() string { return e.msg }

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps the error taxonomy to status codes: bad parameters are
// 400, data shortfalls 422, upstream outages 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var pe *paramError

	switch {
	case errors.As(err, &pe), errors.Is(err, factor.ErrInvalidParameter):
		code = http.StatusBadRequest
	case errors.Is(err, factor.ErrInsufficientData), errors.Is(err, analysis.ErrInsufficientCoverage):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, data.ErrUpstreamUnavailable):
		code = http.StatusServiceUnavailable
	}

	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}
