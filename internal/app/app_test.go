package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/config"
	"vesselcheck/internal/db"
	"vesselcheck/internal/migrate"
	"vesselcheck/internal/repo"
)

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "checklist_id", "cl-1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"checklist_id":"cl-1"`)

	buf.Reset()
	logger = newLogger(config.LogConfig{Format: "text"}, &buf)
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
}

func TestResolveConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "mv-aurora")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	cfg, err := ResolveConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "mv-aurora", cfg.Workspace.ID)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("fleet")), 0o644))
	cfg, err = ResolveConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "fleet", cfg.Workspace.ID)
}

func TestBootstrapGrantsFirstActorOnly(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	cfg := config.Default("ws")

	created, err := Bootstrap(ctx, r, cfg, "master")
	require.NoError(t, err)
	assert.True(t, created)
	roles, err := r.ActorRoles(ctx, "master")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"admin", "inspector", "reviewer", "approver"}, roles)

	created, err = Bootstrap(ctx, r, cfg, "someone-else")
	require.NoError(t, err)
	assert.False(t, created)
}
