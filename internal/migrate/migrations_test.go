package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/db"
)

func TestUpIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	ran, err := Up(ctx, conn)
	require.NoError(t, err)
	all, err := steps()
	require.NoError(t, err)
	assert.Len(t, ran, len(all))

	ran, err = Up(ctx, conn)
	require.NoError(t, err)
	assert.Empty(t, ran)

	applied, err := Status(ctx, conn)
	require.NoError(t, err)
	require.Len(t, applied, len(all))
	assert.Equal(t, 1, applied[0].Version)
	assert.Equal(t, "001_init.sql", applied[0].Name)
	assert.NotEmpty(t, applied[0].AppliedAt)
}

func TestStepsOrdered(t *testing.T) {
	all, err := steps()
	require.NoError(t, err)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Version, all[i].Version)
	}
}
