package repo

import (
	"context"
	"database/sql"
	"slices"
	"strings"
)

type Actor struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	Roles     []string `json:"roles"`
}

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) CountActors(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM actors`).Scan(&n)
	return n, err
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, nullable(desc))
	return err
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, actorID, roleID string) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(actor_id, role_id) VALUES (?,?)`, actorID, roleID)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, actorID, roleID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM actor_roles WHERE actor_id=? AND role_id=?`, actorID, roleID)
	return err
}

func (r Repo) ActorRoles(ctx context.Context, actorID string) ([]string, error) {
	return collectStrings(r.DB.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID))
}

func (r Repo) ActorRolesTx(ctx context.Context, tx *sql.Tx, actorID string) ([]string, error) {
	return collectStrings(tx.QueryContext(ctx, `SELECT role_id FROM actor_roles WHERE actor_id=? ORDER BY role_id`, actorID))
}

func (r Repo) ListRoles(ctx context.Context) ([]string, error) {
	return collectStrings(r.DB.QueryContext(ctx, `SELECT id FROM roles ORDER BY id`))
}

func (r Repo) ListActors(ctx context.Context) ([]Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT a.id, a.created_at, COALESCE(GROUP_CONCAT(ar.role_id), '')
FROM actors a LEFT JOIN actor_roles ar ON ar.actor_id=a.id
GROUP BY a.id, a.created_at ORDER BY a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Actor
	for rows.Next() {
		var a Actor
		var roles string
		if err := rows.Scan(&a.ID, &a.CreatedAt, &roles); err != nil {
			return nil, err
		}
		a.Roles = splitRoles(roles)
		out = append(out, a)
	}
	return out, rows.Err()
}

func splitRoles(s string) []string {
	out := strings.FieldsFunc(s, func(r rune) bool { return r == ',' })
	slices.Sort(out)
	return out
}

func collectStrings(rows *sql.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
