// Package cache keeps the last known copy of each checklist on the device so inspections can
// continue without the canonical store.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/db"
	"vesselcheck/internal/domain"
)

var ErrMiss = errors.New("checklist not cached")

const schema = `CREATE TABLE IF NOT EXISTS cached_checklists(
  id TEXT PRIMARY KEY,
  vessel_id TEXT NOT NULL,
  sync_status TEXT NOT NULL,
  revision INTEGER NOT NULL,
  record_json TEXT NOT NULL,
  cached_at TEXT NOT NULL
)`

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// Open opens the workspace offline database and creates its table.
func Open(ctx context.Context, workspace string) (*Store, error) {
	conn, err := db.Open(db.Config{Workspace: workspace, Offline: true})
	if err != nil {
		return nil, err
	}
	s := &Store{DB: conn}
	if err := s.Init(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Init(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init offline cache: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Put stores c, replacing any cached copy.
func (s *Store) Put(ctx context.Context, c domain.Checklist) error {
	record, err := compliance.Serialize(c)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO cached_checklists(id,vessel_id,sync_status,revision,record_json,cached_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET vessel_id=excluded.vessel_id, sync_status=excluded.sync_status, revision=excluded.revision, record_json=excluded.record_json, cached_at=excluded.cached_at`,
		c.ID, c.VesselID, c.SyncStatus, c.Revision, string(record), s.now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) Get(ctx context.Context, id string) (domain.Checklist, error) {
	var record string
	err := s.DB.QueryRowContext(ctx, `SELECT record_json FROM cached_checklists WHERE id=?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return domain.Checklist{}, fmt.Errorf("%w: %s", ErrMiss, id)
	}
	if err != nil {
		return domain.Checklist{}, err
	}
	return compliance.Deserialize([]byte(record))
}

// List returns every cached checklist, optionally only those not yet synced.
func (s *Store) List(ctx context.Context, unsyncedOnly bool) ([]domain.Checklist, error) {
	query := `SELECT record_json FROM cached_checklists`
	if unsyncedOnly {
		query += ` WHERE sync_status<>'synced'`
	}
	query += ` ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Checklist
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		c, err := compliance.Deserialize([]byte(record))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM cached_checklists WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrMiss, id)
	}
	return nil
}
