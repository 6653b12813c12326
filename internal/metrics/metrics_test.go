package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New()

	r.PhaseFinished("regulatory", "Good", 2, 80)
	r.PhaseFinished("regulatory", "Good", 1, 90)
	r.ExtractionFailed("website", "timeout")
	r.SearchExhausted("general")
	r.Persisted(nil)
	r.Persisted(errors.New("down"))
	r.Tokens("regulatory", 1200, 300)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.status.WithLabelValues("regulatory", "Good")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.extractionFailures.WithLabelValues("website", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.searchExhausted.WithLabelValues("general")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persistence.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persistence.WithLabelValues("error")))
	assert.Equal(t, 1200.0, testutil.ToFloat64(r.tokens.WithLabelValues("regulatory", "input")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.rounds))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.PhaseFinished("regulatory", "Poor", 3, 10)
		r.ExtractionFailed("regulatory", "timeout")
		r.SearchExhausted("regulatory")
		r.Persisted(nil)
		r.Tokens("regulatory", 1, 1)
	})
	assert.Nil(t, r.Registry())
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.PhaseFinished("website", "Excellent", 1, 100)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `profiler_phase_status_total{phase="website",status="Excellent"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
