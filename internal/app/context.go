package app

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"vesselcheck/internal/config"
	"vesselcheck/internal/engine"
	"vesselcheck/internal/repo"
)

// ResolveConfig loads vesselcheck.yml from the workspace, falling back to the defaults named
// after the workspace directory.
func ResolveConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return nil, err
	}
	return config.Default(filepath.Base(abs)), nil
}

// Bootstrap makes a fresh workspace usable: when no actor exists yet, actorID is created and
// granted admin plus every workflow role. It is a no-op once any actor exists.
func Bootstrap(ctx context.Context, r repo.Repo, cfg *config.Config, actorID string) (bool, error) {
	if actorID == "" {
		actorID = "local-user"
	}
	n, err := r.CountActors(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()
	if err := r.EnsureActor(ctx, tx, actorID, now); err != nil {
		return false, fmt.Errorf("ensure actor: %w", err)
	}
	roles := []string{engine.AdminRole}
	for _, role := range cfg.WorkflowRoles() {
		roles = append(roles, role)
	}
	for _, role := range roles {
		if err := r.InsertRole(ctx, tx, role, ""); err != nil {
			return false, fmt.Errorf("insert role %s: %w", role, err)
		}
		if err := r.AssignRole(ctx, tx, actorID, role); err != nil {
			return false, fmt.Errorf("assign role %s: %w", role, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
