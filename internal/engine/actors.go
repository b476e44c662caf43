package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine/auth"
	"vesselcheck/internal/events"
	"vesselcheck/internal/repo"
)

// AdminRole may manage actors, roles and api keys.
const AdminRole = "admin"

// GrantRole gives actorID a role, creating the actor when unknown. Only admins may grant.
func (e Engine) GrantRole(ctx context.Context, adminID, actorID, role string) error {
	role = normalizeRole(role)
	if actorID == "" || role == "" {
		return errors.New("actor and role are required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireRole(ctx, tx, adminID, AdminRole); err != nil {
		return err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureActor(ctx, tx, actorID, now); err != nil {
		return err
	}
	if err := e.Repo.InsertRole(ctx, tx, role, ""); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, actorID, role); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventRoleGranted, EntityKind: "actor", EntityID: actorID, ActorID: adminID, Payload: events.Payload{"role": role}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.logger().Info("role granted", "actor_id", actorID, "role", role, "by", adminID)
	return nil
}

// RevokeRole removes a role. An admin cannot revoke their own admin role.
func (e Engine) RevokeRole(ctx context.Context, adminID, actorID, role string) error {
	role = normalizeRole(role)
	if adminID == actorID && role == AdminRole {
		return errors.New("cannot revoke your own admin role")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireRole(ctx, tx, adminID, AdminRole); err != nil {
		return err
	}
	if _, err := e.Auth.Actor(ctx, tx, actorID); err != nil {
		return err
	}
	if err := e.Repo.RevokeRole(ctx, tx, actorID, role); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventRoleRevoked, EntityKind: "actor", EntityID: actorID, ActorID: adminID, Payload: events.Payload{"role": role}}); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) ListActors(ctx context.Context) ([]repo.Actor, error) {
	return e.Repo.ListActors(ctx)
}

// CreateAPIKey issues a key for actorID. The plaintext is returned once; only its hash is
// stored.
func (e Engine) CreateAPIKey(ctx context.Context, adminID, actorID, name string) (domain.APIKey, string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", err
	}
	plaintext := "vck_" + hex.EncodeToString(raw)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if adminID != actorID {
		if err := e.Auth.RequireRole(ctx, tx, adminID, AdminRole); err != nil {
			return domain.APIKey{}, "", err
		}
	}
	if _, err := e.Auth.Actor(ctx, tx, actorID); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventAPIKeyCreated, EntityKind: "api_key", EntityID: key.ID, ActorID: adminID, Payload: events.Payload{"actor_id": actorID, "name": name}}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plaintext, nil
}

// ListAPIKeys lists the keys of actorID. Actors may list their own keys; admins any.
func (e Engine) ListAPIKeys(ctx context.Context, requesterID, actorID string) ([]domain.APIKey, error) {
	if requesterID != actorID {
		if err := e.Auth.RequireRole(ctx, nil, requesterID, AdminRole); err != nil {
			return nil, err
		}
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, adminID, keyID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.RequireRole(ctx, tx, adminID, AdminRole); err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, tx, keyID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventAPIKeyRevoked, EntityKind: "api_key", EntityID: keyID, ActorID: adminID}); err != nil {
		return err
	}
	return tx.Commit()
}

// IsForbidden reports whether err is a missing-role error.
func IsForbidden(err error) bool {
	var fe auth.ForbiddenError
	return errors.As(err, &fe)
}
