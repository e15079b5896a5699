package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgbdesk/factorcurve/internal/analysis"
	"github.com/jgbdesk/factorcurve/internal/data"
	"github.com/jgbdesk/factorcurve/internal/factor"
)

// fakeService records the parameters it was called with and returns canned
// results or errors.
type fakeService struct {
	analyzeErr     error
	reconstructErr error

	lastEndDate     time.Time
	lastTarget      time.Time
	lastDays        int
	lastComponents  int
	invalidateCalls int
}

func (f *fakeService) Analyze(ctx context.Context, endDate time.Time, days, components int) (*analysis.AnalysisResponse, error) {
	f.lastEndDate, f.lastDays, f.lastComponents = endDate, days, components
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &analysis.AnalysisResponse{
		Maturities: []float64{1, 2, 3},
		Parameters: analysis.Parameters{LookbackDays: days, NComponents: components},
	}, nil
}

func (f *fakeService) Reconstruct(ctx context.Context, target, endDate time.Time, days, components int) (*analysis.ReconstructionResponse, error) {
	f.lastTarget, f.lastEndDate, f.lastDays, f.lastComponents = target, endDate, days, components
	if f.reconstructErr != nil {
		return nil, f.reconstructErr
	}
	return &analysis.ReconstructionResponse{Date: target.Format(dateLayout)}, nil
}

func (f *fakeService) Parameters() analysis.ParameterRanges {
	return analysis.ParameterRanges{
		Days:       analysis.ParamRange{Min: 2, Max: 400, Default: 100},
		Components: analysis.ParamRange{Min: 1, Max: 10, Default: 3},
	}
}

func (f *fakeService) InvalidateAll() { f.invalidateCalls++ }

func (f *fakeService) CacheStats() analysis.CacheStats {
	return analysis.CacheStats{Entries: 2, Hits: 5, Misses: 3}
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(ctx context.Context) error { return p.err }

func doRequest(h http.HandlerFunc, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestAnalyze_Defaults(t *testing.T) {
	svc := &fakeService{}
	h := NewHandlers(svc, nil)

	rec := doRequest(h.Analyze, "/api/v1/pca/analyze")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 100, svc.lastDays)
	assert.Equal(t, 3, svc.lastComponents)
	assert.WithinDuration(t, time.Now(), svc.lastEndDate, time.Minute)
}

func TestAnalyze_ExplicitParams(t *testing.T) {
	svc := &fakeService{}
	h := NewHandlers(svc, nil)

	rec := doRequest(h.Analyze, "/api/v1/pca/analyze?days=60&components=5&end_date=2025-06-30")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 60, svc.lastDays)
	assert.Equal(t, 5, svc.lastComponents)
	assert.Equal(t, "2025-06-30", svc.lastEndDate.Format(dateLayout))
}

func TestAnalyze_BadParams(t *testing.T) {
	svc := &fakeService{}
	h := NewHandlers(svc, nil)

	tests := []struct {
		name string
		url  string
	}{
		{"non-integer days", "/api/v1/pca/analyze?days=abc"},
		{"non-integer components", "/api/v1/pca/analyze?components=x"},
		{"malformed end_date", "/api/v1/pca/analyze?end_date=30-06-2025"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h.Analyze, tt.url)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"out of range parameter", fmt.Errorf("%w: days", factor.ErrInvalidParameter), http.StatusBadRequest},
		{"too few valid dates", fmt.Errorf("%w: 2 valid dates", factor.ErrInsufficientData), http.StatusUnprocessableEntity},
		{"database down", fmt.Errorf("%w: refused", data.ErrUpstreamUnavailable), http.StatusServiceUnavailable},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandlers(&fakeService{analyzeErr: tt.err}, nil)
			rec := doRequest(h.Analyze, "/api/v1/pca/analyze")
			assert.Equal(t, tt.code, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestReconstruct_RequiresDate(t *testing.T) {
	h := NewHandlers(&fakeService{}, nil)

	rec := doRequest(h.Reconstruct, "/api/v1/pca/reconstruct")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(h.Reconstruct, "/api/v1/pca/reconstruct?date=notadate")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconstruct_Success(t *testing.T) {
	svc := &fakeService{}
	h := NewHandlers(svc, nil)

	rec := doRequest(h.Reconstruct, "/api/v1/pca/reconstruct?date=2025-06-27&end_date=2025-06-30&days=40")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-06-27", svc.lastTarget.Format(dateLayout))
	assert.Equal(t, "2025-06-30", svc.lastEndDate.Format(dateLayout))
	assert.Equal(t, 40, svc.lastDays)
}

func TestReconstruct_CoverageFailureIs422(t *testing.T) {
	svc := &fakeService{reconstructErr: fmt.Errorf("%w: 2 observations", analysis.ErrInsufficientCoverage)}
	h := NewHandlers(svc, nil)

	rec := doRequest(h.Reconstruct, "/api/v1/pca/reconstruct?date=2025-06-27")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestParameters(t *testing.T) {
	h := NewHandlers(&fakeService{}, nil)

	rec := doRequest(h.Parameters, "/api/v1/pca/parameters")
	assert.Equal(t, http.StatusOK, rec.Code)

	var ranges analysis.ParameterRanges
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ranges))
	assert.Equal(t, 400, ranges.Days.Max)
	assert.Equal(t, 3, ranges.Components.Default)
}

func TestInvalidate(t *testing.T) {
	svc := &fakeService{}
	h := NewHandlers(svc, nil)

	rec := httptest.NewRecorder()
	h.Invalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.invalidateCalls)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHandlers(&fakeService{}, &fakePinger{})
		rec := doRequest(h.Health, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "ok", body["database"])
		assert.Contains(t, body, "cache")
	})

	t.Run("database down", func(t *testing.T) {
		h := NewHandlers(&fakeService{}, &fakePinger{err: fmt.Errorf("%w: refused", data.ErrUpstreamUnavailable)})
		rec := doRequest(h.Health, "/health")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "degraded", body["status"])
	})

	t.Run("no pinger configured", func(t *testing.T) {
		h := NewHandlers(&fakeService{}, nil)
		rec := doRequest(h.Health, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
