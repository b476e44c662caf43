package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.RecordItemEdit("completed", map[string]int{"error": 2, "warning": 1})
	m.RecordItemEdit("completed", nil)
	m.RecordTransition("inspection", "start")
	m.RecordViolation("complete", "no blocking validation failure")
	m.RecordSync("conflict")
	score := 80
	m.ObserveScore(&score)
	m.ObserveScore(nil)
	m.SetChecklistsByStatus(map[string]int{"draft": 3})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemEdits.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.validationFailures.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("complete", "no blocking validation failure")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.checklistsByStatus.WithLabelValues("draft")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.scores))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "vesselcheck_sync_total")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordItemEdit("completed", map[string]int{"error": 1})
	m.RecordSync("merged")
	m.RecordAPIRequest("GET", "/x", 200, 0.1)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
