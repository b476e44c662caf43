// Package events appends entries to the checklist audit log. Entries are written inside the
// transaction of the command that caused them, so a rolled back command leaves no trace.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vesselcheck/internal/domain"
)

type Payload map[string]any

// Record is one audit entry. Actor administration entries carry no checklist.
type Record struct {
	Type        domain.EventType
	ChecklistID string
	EntityKind  string
	EntityID    string
	ActorID     string
	Payload     Payload
}

func (r Record) validate() error {
	switch {
	case r.Type == "":
		return errors.New("event type required")
	case r.EntityKind == "":
		return fmt.Errorf("%s: entity kind required", r.Type)
	case r.ActorID == "":
		return fmt.Errorf("%s: actor required", r.Type)
	case r.ChecklistID == "" && r.Type.Scope() != "actor":
		return fmt.Errorf("%s: checklist id required", r.Type)
	}
	return nil
}

type Writer struct {
	Now func() time.Time
}

// Append records r inside tx.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, r Record) error {
	if err := r.validate(); err != nil {
		return err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := r.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s payload: %w", r.Type, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,checklist_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), string(r.Type), nullIfEmpty(r.ChecklistID), r.EntityKind, nullIfEmpty(r.EntityID), r.ActorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s: %w", r.Type, err)
	}
	return nil
}

// AppendAll writes records in order, filling in checklistID where a record has none.
func (w Writer) AppendAll(ctx context.Context, tx *sql.Tx, checklistID string, records []Record) error {
	for _, r := range records {
		if r.ChecklistID == "" {
			r.ChecklistID = checklistID
		}
		if err := w.Append(ctx, tx, r); err != nil {
			return err
		}
	}
	return nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
