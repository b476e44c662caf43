package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	defaultDBName = "vesselcheck.db"
	offlineDBName = "offline.db"
	workspaceDir  = ".vesselcheck"
)

type Config struct {
	Workspace string
	// Offline opens the offline cache database instead of the main store.
	Offline bool
}

func dbPath(workspace, name string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, workspaceDir, name)
}

// EnsureWorkspace creates workspace directory if missing.
func EnsureWorkspace(workspace string) (string, error) {
	path := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open opens the SQLite database with foreign keys on.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	name := defaultDBName
	if cfg.Offline {
		name = offlineDBName
	}
	// Writers take the lock at BEGIN so concurrent commands wait on busy_timeout instead of
	// failing on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate", dbPath(cfg.Workspace, name))
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Path returns the db path for the workspace.
func Path(workspace string) string {
	return dbPath(workspace, defaultDBName)
}

// OfflinePath returns the offline cache path for the workspace.
func OfflinePath(workspace string) string {
	return dbPath(workspace, offlineDBName)
}
