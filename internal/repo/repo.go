package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStaleRevision means the stored record moved past the revision the caller read.
	ErrStaleRevision = errors.New("stale checklist revision")
	ErrExists        = errors.New("already exists")
)

const checklistColumns = `id,title,type,vessel_id,inspector_id,status,sync_status,priority,due_date,compliance_score,revision,record_json,created_at,updated_at`

func checklistArgs(c domain.Checklist, record []byte) []any {
	return []any{c.ID, c.Title, c.Type, c.VesselID, c.InspectorID, c.Status, c.SyncStatus, c.Priority,
		nullable(c.DueDate), nullableIntPtr(c.ComplianceScore), c.Revision, string(record), c.CreatedAt, c.UpdatedAt}
}

// InsertChecklist stores a new checklist record.
func (r Repo) InsertChecklist(ctx context.Context, tx *sql.Tx, c domain.Checklist) error {
	record, err := compliance.Serialize(c)
	if err != nil {
		return err
	}
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM checklists WHERE id=?`, c.ID).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("checklist %s: %w", c.ID, ErrExists)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO checklists(`+checklistColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		checklistArgs(c, record)...)
	return err
}

// UpdateChecklist replaces the stored record when it is still at prevRevision.
func (r Repo) UpdateChecklist(ctx context.Context, tx *sql.Tx, c domain.Checklist, prevRevision int) error {
	record, err := compliance.Serialize(c)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE checklists SET title=?, type=?, vessel_id=?, inspector_id=?, status=?, sync_status=?, priority=?, due_date=?, compliance_score=?, revision=?, record_json=?, updated_at=? WHERE id=? AND revision=?`,
		c.Title, c.Type, c.VesselID, c.InspectorID, c.Status, c.SyncStatus, c.Priority, nullable(c.DueDate),
		nullableIntPtr(c.ComplianceScore), c.Revision, string(record), c.UpdatedAt, c.ID, prevRevision)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetChecklistTx(ctx, tx, c.ID); err != nil {
			return err
		}
		return fmt.Errorf("checklist %s at revision %d: %w", c.ID, prevRevision, ErrStaleRevision)
	}
	return nil
}

func scanRecord(row *sql.Row) (domain.Checklist, error) {
	var record string
	err := row.Scan(&record)
	if err == sql.ErrNoRows {
		return domain.Checklist{}, ErrNotFound
	}
	if err != nil {
		return domain.Checklist{}, err
	}
	return compliance.Deserialize([]byte(record))
}

func (r Repo) GetChecklist(ctx context.Context, id string) (domain.Checklist, error) {
	return scanRecord(r.DB.QueryRowContext(ctx, `SELECT record_json FROM checklists WHERE id=?`, id))
}

func (r Repo) GetChecklistTx(ctx context.Context, tx *sql.Tx, id string) (domain.Checklist, error) {
	return scanRecord(tx.QueryRowContext(ctx, `SELECT record_json FROM checklists WHERE id=?`, id))
}

func (r Repo) DeleteChecklist(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM checklists WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type ChecklistFilters struct {
	VesselID   string
	Type       string
	Status     string
	SyncStatus string
	Limit      int
	// Cursor pages by (updated_at, id) descending.
	CursorUpdatedAt string
	CursorID        string
}

func (r Repo) ListChecklists(ctx context.Context, f ChecklistFilters) ([]domain.ChecklistSummary, error) {
	var clauses []string
	var args []any
	if f.VesselID != "" {
		clauses = append(clauses, "vessel_id=?")
		args = append(args, f.VesselID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.SyncStatus != "" {
		clauses = append(clauses, "sync_status=?")
		args = append(args, f.SyncStatus)
	}
	if f.CursorUpdatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(updated_at < ? OR (updated_at = ? AND id < ?))")
		args = append(args, f.CursorUpdatedAt, f.CursorUpdatedAt, f.CursorID)
	}
	query := `SELECT id,title,type,vessel_id,status,sync_status,compliance_score,priority,COALESCE(due_date,''),revision,updated_at FROM checklists`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistSummary
	for rows.Next() {
		var s domain.ChecklistSummary
		var score sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Title, &s.Type, &s.VesselID, &s.Status, &s.SyncStatus, &score, &s.Priority, &s.DueDate, &s.Revision, &s.UpdatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			s.ComplianceScore = &v
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CountChecklistsByStatus feeds the status gauge.
func (r Repo) CountChecklistsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM checklists GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

type EventFilters struct {
	ChecklistID string
	Type        string
	EntityKind  string
	EntityID    string
}

func (r Repo) LatestEvents(ctx context.Context, limit int, f EventFilters) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, f)
}

// LatestEventsFrom returns events older than cursor, newest first.
func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, f EventFilters) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if f.ChecklistID != "" {
		clauses = append(clauses, "checklist_id=?")
		args = append(args, f.ChecklistID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id DESC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, checklistID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if checklistID != "" {
		clauses = append(clauses, "checklist_id=?")
		args = append(args, checklistID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	query := fmt.Sprintf(`SELECT %s FROM events WHERE %s ORDER BY id ASC LIMIT ?`, eventColumns, strings.Join(clauses, " AND "))
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the most recent event ID, optionally for one checklist.
func (r Repo) LatestEventID(ctx context.Context, checklistID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if checklistID != "" {
		query += ` WHERE checklist_id=?`
		args = append(args, checklistID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

const eventColumns = `id,ts,type,COALESCE(checklist_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ChecklistID, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
