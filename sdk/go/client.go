package vesselchecksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal vesselcheck HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credential is set; servers accept it only in legacy mode.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// WithToken sets the credential, routing api keys (vck_ prefix) to X-Api-Key and anything else to Bearer.
func (c *Client) WithToken(token string) *Client {
	token = strings.TrimSpace(token)
	switch {
	case token == "":
	case strings.HasPrefix(token, "vck_"):
		c.APIKey = token
	default:
		c.BearerToken = token
	}
	return c
}

// ChecklistSummary represents the listing projection of a checklist.
type ChecklistSummary struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Type            string `json:"type"`
	VesselID        string `json:"vessel_id"`
	Status          string `json:"status"`
	SyncStatus      string `json:"sync_status"`
	ComplianceScore *int   `json:"compliance_score"`
	Priority        string `json:"priority"`
	DueDate         string `json:"due_date,omitempty"`
	Revision        int    `json:"revision"`
	UpdatedAt       string `json:"updated_at"`
}

// ChecklistPage wraps list responses with cursors.
type ChecklistPage struct {
	Items      []ChecklistSummary `json:"items"`
	NextCursor string             `json:"next_cursor"`
}

// ListOptions filters a checklist listing.
type ListOptions struct {
	VesselID   string
	Type       string
	Status     string
	SyncStatus string
	Limit      int
	Cursor     string
}

// SyncResult is the server's reconciliation of a pushed checklist. Checklist holds the
// stored canonical record as returned by the server.
type SyncResult struct {
	Checklist json.RawMessage `json:"checklist"`
	Created   bool            `json:"created"`
	LocalWins []string        `json:"local_wins,omitempty"`
	Discarded []string        `json:"discarded,omitempty"`
	Conflicts []string        `json:"conflicts,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts"`
	Type        string         `json:"type"`
	ChecklistID string         `json:"checklist_id"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// RiskAssessment is a classified probability/impact pair.
type RiskAssessment struct {
	Probability int    `json:"probability"`
	Impact      int    `json:"impact"`
	Score       int    `json:"score"`
	Level       string `json:"level"`
}

// APIError wraps non-2xx responses. Code and Details are filled from the error envelope when present.
type APIError struct {
	StatusCode int
	Body       string
	Code       string
	Details    map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsConflict reports whether the server rejected a push as a structural sync conflict.
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict && e.Code == "sync_conflict"
}

// IsRejected reports whether the server refused workflow progress carried by a push.
func (e *APIError) IsRejected() bool {
	return e.StatusCode == http.StatusConflict && e.Code == "workflow_violation"
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "v0/health", nil, nil)
}

// PushChecklist sends the full local record of a checklist for reconciliation.
func (c *Client) PushChecklist(ctx context.Context, id string, record json.RawMessage) (SyncResult, error) {
	var resp SyncResult
	endpoint := fmt.Sprintf("v0/checklists/%s/sync", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, record, &resp)
	return resp, err
}

// GetChecklist returns the stored record of a checklist.
func (c *Client) GetChecklist(ctx context.Context, id string) (json.RawMessage, error) {
	var resp json.RawMessage
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/checklists/%s", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// ListChecklists returns one page of checklist summaries.
func (c *Client) ListChecklists(ctx context.Context, opts ListOptions) (ChecklistPage, error) {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("vessel_id", opts.VesselID)
	set("type", opts.Type)
	set("status", opts.Status)
	set("sync_status", opts.SyncStatus)
	set("cursor", opts.Cursor)
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	endpoint := "v0/checklists"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ChecklistPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, "", limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing, optionally scoped to one checklist.
func (c *Client) EventsPage(ctx context.Context, checklistID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if checklistID != "" {
		q.Set("checklist_id", checklistID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Risk classifies a probability/impact pair on the server.
func (c *Client) Risk(ctx context.Context, probability, impact int) (RiskAssessment, error) {
	body := map[string]any{
		"probability": probability,
		"impact":      impact,
	}
	var resp RiskAssessment
	err := c.do(ctx, http.MethodPost, "v0/risk", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
