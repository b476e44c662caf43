package compliance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

func stamp(d time.Duration) string {
	return t0.Add(d).Format(time.RFC3339)
}

func setItem(c *domain.Checklist, id string, value any, status domain.ItemStatus, ts string) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			c.Items[i].Value = value
			c.Items[i].Status = status
			c.Items[i].Timestamp = ts
		}
	}
}

func syncBase(t *testing.T) domain.Checklist {
	t.Helper()
	c := newTestChecklist(t, boolItem("a", true), boolItem("b", true), boolItem("c", false))
	return advance(t, c, ActionStart, domain.StepInspection, inspector)
}

func TestReconcileMergesDisjointEdits(t *testing.T) {
	base := syncBase(t)
	local, remote := Clone(base), Clone(base)
	setItem(&local, "a", true, domain.ItemCompleted, stamp(10*time.Minute))
	local.Revision = 7
	setItem(&remote, "b", true, domain.ItemCompleted, stamp(5*time.Minute))
	remote.Title = "Annual DP trials (rev B)"

	res, err := Reconcile(local, remote)
	require.NoError(t, err)
	assert.Equal(t, domain.SyncSynced, res.SyncStatus)
	assert.Equal(t, domain.SyncSynced, res.Merged.SyncStatus)
	assert.Equal(t, []string{"a"}, res.LocalWins)

	a, _ := res.Merged.Item("a")
	b, _ := res.Merged.Item("b")
	assert.Equal(t, domain.ItemCompleted, a.Status)
	assert.Equal(t, domain.ItemCompleted, b.Status)
	assert.Equal(t, 100, *res.Merged.ComplianceScore)
	assert.Equal(t, "Annual DP trials (rev B)", res.Merged.Title)
	assert.Equal(t, 7, res.Merged.Revision)
}

func TestReconcileTieGoesToRemote(t *testing.T) {
	base := syncBase(t)
	local, remote := Clone(base), Clone(base)
	setItem(&local, "a", true, domain.ItemCompleted, stamp(10*time.Minute))
	setItem(&remote, "a", false, domain.ItemFailed, stamp(10*time.Minute))

	res, err := Reconcile(local, remote)
	require.NoError(t, err)
	a, _ := res.Merged.Item("a")
	assert.Equal(t, domain.ItemFailed, a.Status)
	assert.Equal(t, false, a.Value)

	// within the window still counts as a tie
	setItem(&local, "a", true, domain.ItemCompleted, stamp(10*time.Minute+time.Second))
	res, err = Reconcile(local, remote)
	require.NoError(t, err)
	a, _ = res.Merged.Item("a")
	assert.Equal(t, domain.ItemFailed, a.Status)

	res, err = Reconciler{}.Reconcile(local, remote)
	require.NoError(t, err)
	a, _ = res.Merged.Item("a")
	assert.Equal(t, domain.ItemCompleted, a.Status)
}

func TestReconcileMissingTimestampLoses(t *testing.T) {
	base := syncBase(t)
	local, remote := Clone(base), Clone(base)
	setItem(&local, "a", true, domain.ItemCompleted, "")
	setItem(&remote, "a", false, domain.ItemFailed, stamp(time.Minute))
	setItem(&local, "b", true, domain.ItemCompleted, stamp(time.Minute))
	setItem(&remote, "b", false, domain.ItemFailed, "not-a-time")

	res, err := Reconcile(local, remote)
	require.NoError(t, err)
	a, _ := res.Merged.Item("a")
	b, _ := res.Merged.Item("b")
	assert.Equal(t, domain.ItemFailed, a.Status)
	assert.Equal(t, domain.ItemCompleted, b.Status)
}

func TestReconcileWorkflowNeverRegresses(t *testing.T) {
	base := syncBase(t)
	local := advance(t, base, ActionComplete, domain.StepInspection, inspector)
	local = advance(t, local, ActionStart, domain.StepReview, reviewer)
	remote := Clone(base)

	res, err := Reconcile(local, remote)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, res.Merged.Workflow[1].Status)
	assert.Equal(t, domain.StepInProgress, res.Merged.Workflow[2].Status)
	assert.Equal(t, domain.StatusPendingReview, res.Merged.Status)

	res, err = Reconcile(remote, local)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, res.Merged.Workflow[1].Status)
	assert.Equal(t, domain.StatusPendingReview, res.Merged.Status)
}

func TestReconcileStructuralConflict(t *testing.T) {
	base := syncBase(t)
	local, remote := Clone(base), Clone(base)
	setItem(&local, "a", true, domain.ItemCompleted, stamp(time.Minute))
	remote.Items = remote.Items[:2]

	res, err := Reconcile(local, remote)
	require.ErrorIs(t, err, ErrSyncConflict)
	var sc *SyncConflict
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, []string{"c"}, sc.ItemIDs)
	assert.Equal(t, domain.SyncFailed, res.SyncStatus)

	want := Clone(local)
	want.SyncStatus = domain.SyncFailed
	assert.Equal(t, want, res.Merged)

	retyped := Clone(base)
	retyped.Items[1].Type = domain.ItemText
	_, err = Reconcile(local, retyped)
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, []string{"b"}, sc.ItemIDs)

	other := Clone(base)
	other.ID = "cl-2"
	_, err = Reconcile(local, other)
	assert.ErrorIs(t, err, ErrSyncConflict)
}

func TestReconcileIsIdempotent(t *testing.T) {
	base := syncBase(t)
	local := advance(t, base, ActionComplete, domain.StepInspection, inspector)
	remote := Clone(base)
	setItem(&local, "a", true, domain.ItemCompleted, stamp(20*time.Minute))
	setItem(&local, "b", true, domain.ItemCompleted, stamp(2*time.Minute))
	setItem(&remote, "b", false, domain.ItemFailed, stamp(2*time.Minute))
	setItem(&remote, "c", true, domain.ItemCompleted, stamp(3*time.Minute))
	remote.Revision = 9
	remote.Analysis = &domain.AnalysisResult{OverallScore: 80, RiskLevel: "low"}

	first, err := Reconcile(local, remote)
	require.NoError(t, err)
	second, err := Reconcile(first.Merged, remote)
	require.NoError(t, err)
	assert.Equal(t, first.Merged, second.Merged)
	assert.Equal(t, 9, first.Merged.Revision)
}

func completedCopy(t *testing.T, base domain.Checklist) domain.Checklist {
	t.Helper()
	c := Clone(base)
	setItem(&c, "a", true, domain.ItemCompleted, stamp(time.Minute))
	setItem(&c, "b", true, domain.ItemCompleted, stamp(time.Minute))
	c = advance(t, c, ActionComplete, domain.StepInspection, inspector)
	c = advance(t, c, ActionStart, domain.StepReview, reviewer)
	c = advance(t, c, ActionComplete, domain.StepReview, reviewer)
	c = advance(t, c, ActionStart, domain.StepApproval, approver)
	c = advance(t, c, ActionComplete, domain.StepApproval, approver)
	c = advance(t, c, ActionStart, domain.StepCompletion, approver)
	c = advance(t, c, ActionComplete, domain.StepCompletion, approver)
	require.Equal(t, domain.StatusCompleted, c.Status)
	return c
}

func TestReconcileKeepsCompletedItems(t *testing.T) {
	base := syncBase(t)
	remote := completedCopy(t, base)
	stale := Clone(base)
	setItem(&stale, "a", false, domain.ItemFailed, stamp(3*time.Hour))

	res, err := Reconcile(stale, remote)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Merged.Status)
	a, _ := res.Merged.Item("a")
	assert.Equal(t, domain.ItemCompleted, a.Status)
	assert.Equal(t, true, a.Value)
	assert.Equal(t, 100, *res.Merged.ComplianceScore)
	assert.Equal(t, []string{"a"}, res.Discarded)
	assert.Empty(t, res.LocalWins)

	again, err := Reconcile(res.Merged, remote)
	require.NoError(t, err)
	assert.Equal(t, res.Merged, again.Merged)

	// completed offline, pushed against a remote that kept editing
	res, err = Reconcile(remote, stale)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, res.Merged.Status)
	a, _ = res.Merged.Item("a")
	assert.Equal(t, domain.ItemCompleted, a.Status)
	assert.Equal(t, []string{"a"}, res.Discarded)
}

func TestReconcileKeepsRejectedItems(t *testing.T) {
	base := syncBase(t)
	remote := Clone(base)
	setItem(&remote, "a", true, domain.ItemCompleted, stamp(time.Minute))
	setItem(&remote, "b", true, domain.ItemCompleted, stamp(time.Minute))
	remote = advance(t, remote, ActionComplete, domain.StepInspection, inspector)
	remote = advance(t, remote, ActionStart, domain.StepReview, reviewer)
	remote = advance(t, remote, ActionComplete, domain.StepReview, reviewer)
	remote = advance(t, remote, ActionStart, domain.StepApproval, approver)
	out, _, err := AdvanceWorkflow(remote, WorkflowCommand{Action: ActionComplete, Step: domain.StepApproval, Actor: approver, Decision: domain.DecisionRejected, At: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, domain.StatusRejected, out.Status)

	stale := Clone(base)
	setItem(&stale, "b", false, domain.ItemFailed, stamp(2*time.Hour))
	res, err := Reconcile(stale, out)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, res.Merged.Status)
	b, _ := res.Merged.Item("b")
	assert.Equal(t, domain.ItemCompleted, b.Status)
	assert.Equal(t, []string{"b"}, res.Discarded)
}
