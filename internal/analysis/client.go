// Package analysis talks to the external AI analysis service. The service is opaque: it gets
// the checklist items and returns a score, anomalies and suggestions.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vesselcheck/internal/domain"
)

var (
	ErrNotConfigured = errors.New("analysis endpoint not configured")
	ErrInvalidResult = errors.New("invalid analysis result")
)

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("analysis service: status=%d body=%s", e.StatusCode, e.Body)
}

type Client struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(endpoint, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{Endpoint: endpoint, Token: token, Timeout: timeout}
}

// Analyze posts the request and decodes the result. The caller's context bounds the call in
// addition to the client timeout.
func (c *Client) Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error) {
	if c == nil || strings.TrimSpace(c.Endpoint) == "" {
		return domain.AnalysisResult{}, ErrNotConfigured
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		return domain.AnalysisResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, &buf)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("analysis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.AnalysisResult{}, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	var out domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("decode analysis result: %w", err)
	}
	if err := Check(out); err != nil {
		return domain.AnalysisResult{}, err
	}
	return out, nil
}

// Check rejects results outside the documented ranges.
func Check(res domain.AnalysisResult) error {
	if res.OverallScore < 0 || res.OverallScore > 100 {
		return fmt.Errorf("%w: overall_score %d outside 0-100", ErrInvalidResult, res.OverallScore)
	}
	for i, a := range res.Anomalies {
		if a.Confidence < 0 || a.Confidence > 1 {
			return fmt.Errorf("%w: anomaly %d confidence %g outside 0-1", ErrInvalidResult, i, a.Confidence)
		}
		switch a.Severity {
		case "low", "medium", "high", "critical":
		default:
			return fmt.Errorf("%w: anomaly %d has unknown severity %q", ErrInvalidResult, i, a.Severity)
		}
	}
	return nil
}
