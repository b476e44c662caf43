package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

func cachedChecklist(t *testing.T, id string) domain.Checklist {
	t.Helper()
	c, err := compliance.NewChecklist(compliance.Params{
		ID:          id,
		Title:       "Lifeboat drill",
		Type:        domain.ChecklistSafety,
		VesselID:    "v-1",
		InspectorID: "insp",
	}, []domain.ChecklistItem{
		{ID: "davit", Title: "Davit brake tested", Type: domain.ItemBoolean, Required: true, Category: "lsa"},
	}, compliance.DefaultRoles, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return c
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Get(ctx, "cl-1")
	assert.ErrorIs(t, err, ErrMiss)

	a := cachedChecklist(t, "cl-1")
	b := cachedChecklist(t, "cl-2")
	b.SyncStatus = domain.SyncSynced
	require.NoError(t, s.Put(ctx, a))
	require.NoError(t, s.Put(ctx, b))

	got, err := s.Get(ctx, "cl-1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	a.Title = "Lifeboat drill (monthly)"
	require.NoError(t, s.Put(ctx, a))
	got, err = s.Get(ctx, "cl-1")
	require.NoError(t, err)
	assert.Equal(t, "Lifeboat drill (monthly)", got.Title)

	all, err := s.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	pending, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cl-1", pending[0].ID)

	require.NoError(t, s.Delete(ctx, "cl-2"))
	assert.ErrorIs(t, s.Delete(ctx, "cl-2"), ErrMiss)
}
