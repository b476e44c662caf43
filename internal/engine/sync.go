package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine/auth"
	"vesselcheck/internal/events"
	"vesselcheck/internal/repo"
)

func (e Engine) reconciler() compliance.Reconciler {
	return compliance.Reconciler{TieWindow: e.Config.TieWindow()}
}

// SyncResult reports one reconciliation against the stored copy.
type SyncResult struct {
	Checklist domain.Checklist `json:"checklist"`
	Created   bool             `json:"created"`
	LocalWins []string         `json:"local_wins,omitempty"`
	Discarded []string         `json:"discarded,omitempty"`
	Conflicts []string         `json:"conflicts,omitempty"`
}

// Sync reconciles a pushed copy (the peer's local record) against the stored canonical copy
// and stores the merge. Unknown checklists are adopted as-is. Workflow progress carried by
// the pushed copy is re-checked against local actors and roles; a step the pusher could not
// have advanced rejects the whole push with *compliance.WorkflowViolation. A structural
// conflict leaves the stored copy untouched and returns *compliance.SyncConflict.
func (e Engine) Sync(ctx context.Context, incoming domain.Checklist, actorID string) (SyncResult, error) {
	return e.reconcileStored(ctx, incoming, actorID, "pushed")
}

// ApplyRemote stores the canonical copy returned by the remote peer, reconciled against any
// local edits made since the push. On conflict the local copy is kept and marked sync_failed.
func (e Engine) ApplyRemote(ctx context.Context, remote domain.Checklist, actorID string) (SyncResult, error) {
	return e.reconcileStored(ctx, remote, actorID, "pulled")
}

func (e Engine) reconcileStored(ctx context.Context, other domain.Checklist, actorID, direction string) (SyncResult, error) {
	if err := compliance.CheckIntegrity(other); err != nil {
		e.Metrics.RecordSync("failed")
		return SyncResult{}, err
	}
	unlock := e.lock(other.ID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return SyncResult{}, err
	}
	defer tx.Rollback()

	if _, err := e.Auth.Actor(ctx, tx, actorID); err != nil {
		return SyncResult{}, err
	}
	stored, err := e.Repo.GetChecklistTx(ctx, tx, other.ID)
	if errors.Is(err, repo.ErrNotFound) {
		if direction == "pushed" {
			if verr := e.verifyPushed(ctx, tx, nil, other); verr != nil {
				return SyncResult{}, e.rejectPush(ctx, tx, other.ID, actorID, verr)
			}
		}
		adopted := compliance.Clone(other)
		adopted.SyncStatus = domain.SyncSynced
		if err := e.Repo.InsertChecklist(ctx, tx, adopted); err != nil {
			return SyncResult{}, err
		}
		if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistSynced, ChecklistID: adopted.ID, EntityKind: "checklist", EntityID: adopted.ID, ActorID: actorID, Payload: events.Payload{
			"direction": direction,
			"created":   true,
			"revision":  adopted.Revision,
		}}); err != nil {
			return SyncResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return SyncResult{}, err
		}
		e.cachePut(ctx, adopted)
		e.Metrics.RecordSync("created")
		e.logger().Info("checklist adopted", "checklist_id", adopted.ID, "direction", direction)
		return SyncResult{Checklist: adopted, Created: true}, nil
	}
	if err != nil {
		return SyncResult{}, err
	}

	// The pushed copy is the peer's local record; the stored copy is canonical on the server.
	// Pulling swaps the roles: the stored copy is the local one.
	local, remote := other, stored
	if direction == "pulled" {
		local, remote = stored, other
	}
	res, rerr := e.reconciler().Reconcile(local, remote)
	if rerr != nil {
		var sc *compliance.SyncConflict
		if !errors.As(rerr, &sc) {
			return SyncResult{}, rerr
		}
		if direction == "pulled" && stored.SyncStatus != domain.SyncFailed {
			failed := compliance.Clone(stored)
			failed.SyncStatus = domain.SyncFailed
			if err := e.Repo.UpdateChecklist(ctx, tx, failed, stored.Revision); err != nil {
				return SyncResult{}, err
			}
			stored = failed
		}
		if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistSyncConflict, ChecklistID: other.ID, EntityKind: "checklist", EntityID: other.ID, ActorID: actorID, Payload: events.Payload{
			"direction": direction,
			"reason":    sc.Reason,
			"item_ids":  sc.ItemIDs,
		}}); err != nil {
			return SyncResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return SyncResult{}, err
		}
		if direction == "pulled" {
			e.cachePut(ctx, stored)
		}
		e.Metrics.RecordSync("conflict")
		e.logger().Warn("sync conflict", "checklist_id", other.ID, "direction", direction, "reason", sc.Reason, "items", sc.ItemIDs)
		return SyncResult{Checklist: stored, Conflicts: res.Conflicts}, rerr
	}

	merged := res.Merged
	if direction == "pushed" {
		if verr := e.verifyPushed(ctx, tx, stored.Workflow, merged); verr != nil {
			return SyncResult{}, e.rejectPush(ctx, tx, other.ID, actorID, verr)
		}
	}
	if err := e.Repo.UpdateChecklist(ctx, tx, merged, stored.Revision); err != nil {
		return SyncResult{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistSynced, ChecklistID: merged.ID, EntityKind: "checklist", EntityID: merged.ID, ActorID: actorID, Payload: events.Payload{
		"direction":  direction,
		"local_wins": res.LocalWins,
		"discarded":  res.Discarded,
		"revision":   merged.Revision,
		"status":     merged.Status,
	}}); err != nil {
		return SyncResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return SyncResult{}, err
	}
	e.cachePut(ctx, merged)
	e.Metrics.RecordSync("merged")
	e.Metrics.ObserveScore(merged.ComplianceScore)
	e.logger().Info("checklist synced", "checklist_id", merged.ID, "direction", direction, "local_wins", len(res.LocalWins), "discarded", len(res.Discarded))
	return SyncResult{Checklist: merged, LocalWins: res.LocalWins, Discarded: res.Discarded}, nil
}

// verifyPushed re-checks the steps a pushed copy advanced beyond before. Step actors are
// resolved inside tx; ids unknown here hold no roles.
func (e Engine) verifyPushed(ctx context.Context, tx *sql.Tx, before []domain.WorkflowStep, next domain.Checklist) error {
	policy := compliance.Policy{Roles: e.Config.WorkflowRoles(), Skippable: e.Config.SkippableSteps()}
	return compliance.VerifyProgress(before, next, policy, func(id string) (compliance.Actor, error) {
		a, err := e.Auth.Actor(ctx, tx, id)
		if errors.Is(err, auth.ErrUnknownActor) {
			return compliance.Actor{ID: id}, nil
		}
		return a, err
	})
}

// rejectPush records a refused push and returns cause. The stored copy is not modified.
func (e Engine) rejectPush(ctx context.Context, tx *sql.Tx, checklistID, actorID string, cause error) error {
	var v *compliance.WorkflowViolation
	if !errors.As(cause, &v) {
		return cause
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistSyncRejected, ChecklistID: checklistID, EntityKind: "checklist", EntityID: checklistID, ActorID: actorID, Payload: events.Payload{
		"step":         v.Step,
		"precondition": v.Precondition,
		"detail":       v.Detail,
	}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.Metrics.RecordSync("rejected")
	e.logger().Warn("sync rejected", "checklist_id", checklistID, "step", v.Step, "precondition", v.Precondition)
	return cause
}

// MarkSyncFailed flags a local record whose push could not reach the remote.
func (e Engine) MarkSyncFailed(ctx context.Context, checklistID, actorID string, cause error) error {
	unlock := e.lock(checklistID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetChecklistTx(ctx, tx, checklistID)
	if err != nil {
		return err
	}
	c.SyncStatus = domain.SyncFailed
	if err := e.Repo.UpdateChecklist(ctx, tx, c, c.Revision); err != nil {
		return err
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistSyncFailed, ChecklistID: c.ID, EntityKind: "checklist", EntityID: c.ID, ActorID: actorID, Payload: events.Payload{"error": reason}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.cachePut(ctx, c)
	e.Metrics.RecordSync("failed")
	e.logger().Warn("sync failed", "checklist_id", c.ID, "error", reason)
	return nil
}

// PendingSync lists local records that still need a push.
func (e Engine) PendingSync(ctx context.Context) ([]domain.Checklist, error) {
	var out []domain.Checklist
	for _, status := range []domain.SyncStatus{domain.SyncPending, domain.SyncFailed} {
		list, err := e.Repo.ListChecklists(ctx, repo.ChecklistFilters{SyncStatus: string(status)})
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			c, err := e.Repo.GetChecklist(ctx, s.ID)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", s.ID, err)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// RestoreFromCache brings cached records back into the store: missing records are adopted,
// existing ones are reconciled with the cached copy treated as the local edit.
func (e Engine) RestoreFromCache(ctx context.Context, actorID string) ([]SyncResult, error) {
	if e.Cache == nil {
		return nil, errors.New("offline cache not configured")
	}
	cached, err := e.Cache.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var out []SyncResult
	for _, c := range cached {
		res, err := e.Sync(ctx, c, actorID)
		if err != nil && !errors.Is(err, compliance.ErrSyncConflict) {
			return out, fmt.Errorf("restore %s: %w", c.ID, err)
		}
		out = append(out, res)
	}
	return out, nil
}
