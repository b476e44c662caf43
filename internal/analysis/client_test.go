package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

func TestAnalyze(t *testing.T) {
	var got domain.AnalysisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(domain.AnalysisResult{
			OverallScore: 72,
			RiskLevel:    "medium",
			Anomalies: []domain.Anomaly{
				{ItemID: "thrusters", Type: "out_of_range", Severity: "high", Description: "thruster 2 load imbalance", Confidence: 0.8},
			},
		})
	}))
	defer srv.Close()

	score := 50
	c := New(srv.URL, "tok", time.Second)
	res, err := c.Analyze(context.Background(), domain.AnalysisRequest{ChecklistID: "cl-1", CurrentScore: &score})
	require.NoError(t, err)
	assert.Equal(t, "cl-1", got.ChecklistID)
	assert.Equal(t, 50, *got.CurrentScore)
	assert.Equal(t, 72, res.OverallScore)
	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, "thrusters", res.Anomalies[0].ItemID)
}

func TestAnalyzeErrors(t *testing.T) {
	_, err := New("", "", 0).Analyze(context.Background(), domain.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	_, err = New(failing.URL, "", time.Second).Analyze(context.Background(), domain.AnalysisRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)

	bogus := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"overall_score": 140}`))
	}))
	defer bogus.Close()
	_, err = New(bogus.URL, "", time.Second).Analyze(context.Background(), domain.AnalysisRequest{})
	assert.ErrorIs(t, err, ErrInvalidResult)
	assert.ErrorContains(t, err, "overall_score")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()
	_, err = New(slow.URL, "", 50*time.Millisecond).Analyze(context.Background(), domain.AnalysisRequest{})
	assert.Error(t, err)
}
