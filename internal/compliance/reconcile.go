package compliance

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"vesselcheck/internal/domain"
)

// DefaultTieWindow treats item edits this close together as simultaneous. Stored
// timestamps have second precision.
const DefaultTieWindow = time.Second

// Reconciler merges an offline-edited local copy with the remote canonical copy.
type Reconciler struct {
	TieWindow time.Duration
}

// Result is the outcome of one merge.
type Result struct {
	Merged     domain.Checklist  `json:"merged"`
	SyncStatus domain.SyncStatus `json:"sync_status"`
	// Conflicts lists item ids that prevented the merge.
	Conflicts []string `json:"conflicts,omitempty"`
	// LocalWins lists item ids whose local edit was kept.
	LocalWins []string `json:"local_wins,omitempty"`
	// Discarded lists item ids whose later edit was dropped because the other copy is
	// already rejected or completed.
	Discarded []string `json:"discarded,omitempty"`
}

// Reconcile merges with the default tie window.
func Reconcile(local, remote domain.Checklist) (Result, error) {
	return Reconciler{TieWindow: DefaultTieWindow}.Reconcile(local, remote)
}

// Reconcile merges items last-writer-wins by timestamp, with remote winning ties, and merges
// workflow steps monotonically. Items of a rejected or completed copy are frozen: the merge
// keeps them (remote first when both are terminal) and reports the other side's later edits
// as Discarded. On a structural conflict the local copy is returned unchanged, marked
// sync_failed, together with a SyncConflict.
func (r Reconciler) Reconcile(local, remote domain.Checklist) (Result, error) {
	if conflict := structuralConflict(local, remote); conflict != nil {
		failed := Clone(local)
		failed.SyncStatus = domain.SyncFailed
		return Result{Merged: failed, SyncStatus: domain.SyncFailed, Conflicts: conflict.ItemIDs}, conflict
	}

	localItems := make(map[string]domain.ChecklistItem, len(local.Items))
	for _, it := range local.Items {
		localItems[it.ID] = it
	}
	remoteFrozen := DeriveStatus(remote.Workflow).Terminal()
	localFrozen := DeriveStatus(local.Workflow).Terminal()
	merged := Clone(remote)
	var localWins, discarded []string
	for i, rem := range remote.Items {
		loc := localItems[rem.ID]
		switch {
		case remoteFrozen:
			if r.localWins(loc, rem) {
				discarded = append(discarded, loc.ID)
			}
		case localFrozen:
			merged.Items[i] = cloneItem(loc)
			if r.localWins(rem, loc) {
				discarded = append(discarded, rem.ID)
			}
		case r.localWins(loc, rem):
			merged.Items[i] = cloneItem(loc)
			localWins = append(localWins, loc.ID)
		}
	}

	localSteps := make(map[domain.StepType]domain.WorkflowStep, len(local.Workflow))
	for _, s := range local.Workflow {
		localSteps[s.Type] = s
	}
	for i, rem := range remote.Workflow {
		if loc, ok := localSteps[rem.Type]; ok && stepRank(loc.Status) > stepRank(rem.Status) {
			merged.Workflow[i] = loc
		}
	}

	if merged.Analysis == nil && local.Analysis != nil {
		merged.Analysis = Clone(local).Analysis
	}
	merged.Revision = max(local.Revision, remote.Revision)
	merged.UpdatedAt = laterTimestamp(local.UpdatedAt, remote.UpdatedAt)
	merged.SyncStatus = domain.SyncSynced
	refresh(&merged)
	return Result{Merged: merged, SyncStatus: domain.SyncSynced, LocalWins: localWins, Discarded: discarded}, nil
}

// localWins reports whether loc is strictly later than rem by more than the tie window. A
// missing timestamp always loses.
func (r Reconciler) localWins(loc, rem domain.ChecklistItem) bool {
	lt, lok := parseTimestamp(loc.Timestamp)
	rt, rok := parseTimestamp(rem.Timestamp)
	switch {
	case !lok:
		return false
	case !rok:
		return true
	}
	return lt.Sub(rt) > r.TieWindow
}

func stepRank(s domain.StepStatus) int {
	switch s {
	case domain.StepCompleted:
		return 3
	case domain.StepSkipped:
		return 2
	case domain.StepInProgress:
		return 1
	}
	return 0
}

func laterTimestamp(a, b string) string {
	at, aok := parseTimestamp(a)
	bt, bok := parseTimestamp(b)
	switch {
	case !aok:
		return b
	case !bok:
		return a
	case at.After(bt):
		return a
	}
	return b
}

func structuralConflict(local, remote domain.Checklist) *SyncConflict {
	if local.ID != remote.ID {
		return &SyncConflict{ChecklistID: local.ID, Reason: fmt.Sprintf("checklist ids differ (remote %s)", remote.ID)}
	}
	if err := CheckWorkflow(local.Workflow); err != nil {
		return &SyncConflict{ChecklistID: local.ID, Reason: "local workflow: " + err.Error()}
	}
	if err := CheckWorkflow(remote.Workflow); err != nil {
		return &SyncConflict{ChecklistID: local.ID, Reason: "remote workflow: " + err.Error()}
	}
	remoteItems := make(map[string]domain.ChecklistItem, len(remote.Items))
	for _, it := range remote.Items {
		remoteItems[it.ID] = it
	}
	var ids []string
	seen := map[string]bool{}
	for _, it := range local.Items {
		seen[it.ID] = true
		rem, ok := remoteItems[it.ID]
		if !ok || rem.Type != it.Type {
			ids = append(ids, it.ID)
		}
	}
	for _, it := range remote.Items {
		if !seen[it.ID] {
			ids = append(ids, it.ID)
		}
	}
	if len(local.Items) != len(seen) || len(remote.Items) != len(remoteItems) {
		return &SyncConflict{ChecklistID: local.ID, ItemIDs: ids, Reason: "duplicate item ids"}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	ids = slices.Compact(ids)
	return &SyncConflict{ChecklistID: local.ID, ItemIDs: ids, Reason: "item sets differ"}
}
