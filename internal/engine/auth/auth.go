package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"vesselcheck/internal/compliance"
)

var ErrUnknownActor = errors.New("unknown actor")

// ForbiddenError indicates a missing role.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("role %s required", e.Role)
}

// Service resolves actors and their roles from SQL.
type Service struct {
	DB *sql.DB
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s Service) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.DB
}

// Actor loads an actor with its roles. Unknown ids return ErrUnknownActor.
func (s Service) Actor(ctx context.Context, tx *sql.Tx, actorID string) (compliance.Actor, error) {
	if actorID == "" {
		return compliance.Actor{}, errors.New("actor_id required")
	}
	var n int
	if err := s.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM actors WHERE id=?`, actorID).Scan(&n); err != nil {
		return compliance.Actor{}, err
	}
	if n == 0 {
		return compliance.Actor{}, fmt.Errorf("%w: %s", ErrUnknownActor, actorID)
	}
	roles, err := s.ActorRoles(ctx, tx, actorID)
	if err != nil {
		return compliance.Actor{}, err
	}
	return compliance.Actor{ID: actorID, Roles: roles}, nil
}

func (s Service) ActorRoles(ctx context.Context, tx *sql.Tx, actorID string) ([]string, error) {
	rows, err := s.q(tx).QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// RequireRole returns ForbiddenError unless the actor holds role.
func (s Service) RequireRole(ctx context.Context, tx *sql.Tx, actorID, role string) error {
	actor, err := s.Actor(ctx, tx, actorID)
	if err != nil {
		return err
	}
	if !slices.Contains(actor.Roles, role) {
		return ForbiddenError{Role: role}
	}
	return nil
}
