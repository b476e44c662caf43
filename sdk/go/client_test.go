package vesselchecksdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTokenRoutesCredential(t *testing.T) {
	c := New("http://x").WithToken("vck_abc")
	assert.Equal(t, "vck_abc", c.APIKey)
	assert.Empty(t, c.BearerToken)

	c = New("http://x").WithToken("eyJ.jwt")
	assert.Equal(t, "eyJ.jwt", c.BearerToken)
	assert.Empty(t, c.APIKey)
}

func TestPushChecklist(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		_, _ = w.Write([]byte(`{"checklist":{"id":"cl 1","revision":3},"created":false,"local_wins":["gyro"],"discarded":["hull"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL + "/").WithToken("vck_k")
	res, err := c.PushChecklist(context.Background(), "cl 1", json.RawMessage(`{"id":"cl 1","revision":2}`))
	require.NoError(t, err)
	assert.Equal(t, "/v0/checklists/cl%201/sync", gotPath)
	assert.Equal(t, "vck_k", gotKey)
	assert.Equal(t, "cl 1", gotBody["id"])
	assert.Equal(t, []string{"gyro"}, res.LocalWins)
	assert.Equal(t, []string{"hull"}, res.Discarded)
	assert.JSONEq(t, `{"id":"cl 1","revision":3}`, string(res.Checklist))
}

func TestAPIErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"code":"sync_conflict","message":"item set differs","details":{"reason":"item set differs"}}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).PushChecklist(context.Background(), "cl-1", json.RawMessage(`{}`))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsConflict())
	assert.Equal(t, "item set differs", apiErr.Details["reason"])
}

func TestListChecklistsQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "insp", r.Header.Get("X-Actor-Id"))
		_, _ = w.Write([]byte(`{"items":[{"id":"cl-1","status":"draft"}],"next_cursor":"c"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.ActorID = "insp"
	page, err := c.ListChecklists(context.Background(), ListOptions{VesselID: "v-1", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, "limit=10&vessel_id=v-1", gotQuery)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "draft", page.Items[0].Status)
	assert.Equal(t, "c", page.NextCursor)
}
