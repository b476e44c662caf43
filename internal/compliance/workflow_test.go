package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesselcheck/internal/domain"
)

// runToApproval drives a checklist to the point where approval is in progress.
func runToApproval(t *testing.T, c domain.Checklist) domain.Checklist {
	t.Helper()
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)
	c = advance(t, c, ActionComplete, domain.StepInspection, inspector)
	c = advance(t, c, ActionStart, domain.StepReview, reviewer)
	c = advance(t, c, ActionComplete, domain.StepReview, reviewer)
	return advance(t, c, ActionStart, domain.StepApproval, approver)
}

func TestWorkflowHappyPath(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", true))
	steps := []struct {
		action Action
		step   domain.StepType
		actor  Actor
		status domain.ChecklistStatus
	}{
		{ActionStart, domain.StepInspection, inspector, domain.StatusInProgress},
		{ActionComplete, domain.StepInspection, inspector, domain.StatusInProgress},
		{ActionStart, domain.StepReview, reviewer, domain.StatusPendingReview},
		{ActionComplete, domain.StepReview, reviewer, domain.StatusPendingReview},
		{ActionStart, domain.StepApproval, approver, domain.StatusPendingReview},
		{ActionComplete, domain.StepApproval, approver, domain.StatusApproved},
		{ActionStart, domain.StepCompletion, approver, domain.StatusApproved},
		{ActionComplete, domain.StepCompletion, approver, domain.StatusCompleted},
	}
	for _, s := range steps {
		c = advance(t, c, s.action, s.step, s.actor)
		assert.Equal(t, s.status, c.Status, "%s %s", s.action, s.step)
		assert.Equal(t, DeriveStatus(c.Workflow), c.Status)
	}
	approval, _ := c.Step(domain.StepApproval)
	assert.Equal(t, domain.DecisionApproved, approval.Decision)
	assert.Equal(t, approver.ID, approval.CompletedBy)

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionAssign, Step: domain.StepCompletion, Actor: approver, Assignee: "x"})
	var v *WorkflowViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "checklist open", v.Precondition)
}

func TestWorkflowViolations(t *testing.T) {
	base := newTestChecklist(t, boolItem("a", true))
	inInspection := advance(t, base, ActionStart, domain.StepInspection, inspector)

	tests := []struct {
		name         string
		c            domain.Checklist
		cmd          WorkflowCommand
		precondition string
	}{
		{"wrong role", base, WorkflowCommand{Action: ActionStart, Step: domain.StepInspection, Actor: reviewer}, "required role"},
		{"preceding step open", base, WorkflowCommand{Action: ActionStart, Step: domain.StepReview, Actor: reviewer}, "preceding steps done"},
		{"complete pending step", base, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: inspector}, "step in progress"},
		{"restart creation", base, WorkflowCommand{Action: ActionStart, Step: domain.StepCreation, Actor: inspector}, "step pending"},
		{"skip review", base, WorkflowCommand{Action: ActionSkip, Step: domain.StepReview, Actor: reviewer}, "step skippable"},
		{"unknown step", base, WorkflowCommand{Action: ActionStart, Step: "audit", Actor: inspector}, "step exists"},
		{"unknown action", base, WorkflowCommand{Action: "rewind", Step: domain.StepInspection, Actor: inspector}, "known action"},
		{"anonymous actor", base, WorkflowCommand{Action: ActionStart, Step: domain.StepInspection}, "actor identified"},
		{"assign without assignee", inInspection, WorkflowCommand{Action: ActionAssign, Step: domain.StepInspection, Actor: inspector}, "assignee given"},
		{"complete by other role", inInspection, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: approver}, "required role"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, events, err := AdvanceWorkflow(tc.c, tc.cmd)
			require.ErrorIs(t, err, ErrWorkflowViolation)
			var v *WorkflowViolation
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tc.precondition, v.Precondition)
			assert.Nil(t, events)
			assert.Equal(t, tc.c, out)
		})
	}
}

func TestSkipNeverAppliesToReviewEvenIfFlagged(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", true))
	c.Workflow[2].Skippable = true
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)
	c = advance(t, c, ActionComplete, domain.StepInspection, inspector)

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionSkip, Step: domain.StepReview, Actor: reviewer})
	assert.ErrorIs(t, err, ErrWorkflowViolation)
}

func TestSkippableStep(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", true))
	c.Workflow[1].Skippable = true
	c = advance(t, c, ActionSkip, domain.StepInspection, inspector)
	assert.Equal(t, domain.StepSkipped, c.Workflow[1].Status)
	assert.Equal(t, domain.StatusDraft, c.Status)

	c = advance(t, c, ActionStart, domain.StepReview, reviewer)
	assert.Equal(t, domain.StatusPendingReview, c.Status)
}

func TestApprovalRequiresCompletedReview(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", true))
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)
	c = advance(t, c, ActionComplete, domain.StepInspection, inspector)
	c = advance(t, c, ActionStart, domain.StepReview, reviewer)
	// a record arriving with approval already started ahead of review
	c.Workflow[3].Status = domain.StepInProgress

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepApproval, Actor: approver})
	var v *WorkflowViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "review completed", v.Precondition)
}

func TestApprovalDecision(t *testing.T) {
	c := runToApproval(t, newTestChecklist(t, boolItem("a", true)))

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepApproval, Actor: approver, Decision: "maybe"})
	assert.ErrorIs(t, err, ErrWorkflowViolation)

	rejected, events, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepApproval, Actor: approver, Decision: domain.DecisionRejected, Comment: "thruster 3 unserviceable"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.Len(t, events, 2)
	assert.Equal(t, domain.WorkflowEvent("complete"), events[0].Type)
	assert.Equal(t, domain.DecisionRejected, events[0].Payload["decision"])
	assert.Equal(t, domain.EventChecklistStatusChanged, events[1].Type)

	_, _, err = AdvanceWorkflow(rejected, WorkflowCommand{Action: ActionStart, Step: domain.StepCompletion, Actor: approver})
	assert.ErrorIs(t, err, ErrWorkflowViolation)
}

func TestAssignedStepCompletesOnlyByAssignee(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", true))
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)
	c, events, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionAssign, Step: domain.StepInspection, Actor: inspector, Assignee: "insp-2"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "insp-2", events[0].Payload["assignee"])
	assert.Equal(t, "insp-2", c.Workflow[1].AssignedTo)

	_, _, err = AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: inspector})
	var v *WorkflowViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "assignee", v.Precondition)

	c = advance(t, c, ActionComplete, domain.StepInspection, Actor{ID: "insp-2", Roles: []string{"inspector"}})
	assert.Equal(t, "insp-2", c.Workflow[1].CompletedBy)
}

func TestInspectionGate(t *testing.T) {
	rule := domain.ValidationRule{Type: domain.RuleRange, Value: map[string]any{"min": 0.0, "max": 10.0}}
	a := domain.ChecklistItem{ID: "a", Title: "a", Type: domain.ItemNumber, Required: true, Category: "c", ValidationRules: []domain.ValidationRule{rule}}
	b := a
	b.ID = "b"
	opt := a
	opt.ID = "opt"
	opt.Required = false

	c := newTestChecklist(t, a, b, opt)
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)
	c = edit(t, c, ItemEdit{ItemID: "a", Value: 20.0})
	c = edit(t, c, ItemEdit{ItemID: "b", Value: -3.0})
	c = edit(t, c, ItemEdit{ItemID: "opt", Value: 50.0})

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: inspector})
	var v *WorkflowViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "no blocking validation failure", v.Precondition)
	require.Len(t, v.Failures, 2)
	assert.Equal(t, "a", v.Failures[0].ItemID)
	assert.Equal(t, "b", v.Failures[1].ItemID)

	c = edit(t, c, ItemEdit{ItemID: "a", Value: 5.0})
	c = edit(t, c, ItemEdit{ItemID: "b", Value: 7.0})
	c = advance(t, c, ActionComplete, domain.StepInspection, inspector)
	assert.Equal(t, domain.StepCompleted, c.Workflow[1].Status)
}

func TestInspectionGateBlocksDanglingDependency(t *testing.T) {
	c := newTestChecklist(t, boolItem("a", false), boolItem("b", true))
	c.Items[0].Dependencies = []string{"ghost"}
	c = advance(t, c, ActionStart, domain.StepInspection, inspector)

	_, _, err := AdvanceWorkflow(c, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: inspector})
	var v *WorkflowViolation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "no dangling dependency", v.Precondition)
	assert.Equal(t, []string{"a"}, v.Blocked)
}

func TestDeriveStatus(t *testing.T) {
	wf := func(statuses ...domain.StepStatus) []domain.WorkflowStep {
		out := make([]domain.WorkflowStep, len(statuses))
		for i, s := range statuses {
			out[i] = domain.WorkflowStep{Type: domain.StepSequence[i], Status: s}
		}
		return out
	}
	P, A, C, S := domain.StepPending, domain.StepInProgress, domain.StepCompleted, domain.StepSkipped

	assert.Equal(t, domain.StatusDraft, DeriveStatus(wf(A, P, P, P, P)))
	assert.Equal(t, domain.StatusDraft, DeriveStatus(wf(C, P, P, P, P)))
	assert.Equal(t, domain.StatusInProgress, DeriveStatus(wf(C, A, P, P, P)))
	assert.Equal(t, domain.StatusPendingReview, DeriveStatus(wf(C, S, A, P, P)))
	assert.Equal(t, domain.StatusApproved, DeriveStatus(wf(C, C, C, C, P)))
	assert.Equal(t, domain.StatusCompleted, DeriveStatus(wf(C, C, C, C, C)))
	assert.Equal(t, domain.StatusApproved, DeriveStatus(wf(C, C, C, C, S)))

	rejected := wf(C, C, C, C, P)
	rejected[3].Decision = domain.DecisionRejected
	assert.Equal(t, domain.StatusRejected, DeriveStatus(rejected))
}

func TestCheckWorkflow(t *testing.T) {
	steps := NewWorkflow("cl", DefaultRoles, "insp", t0)
	require.NoError(t, CheckWorkflow(steps))

	short := steps[:4]
	assert.ErrorIs(t, CheckWorkflow(short), ErrIntegrity)

	ahead := NewWorkflow("cl", DefaultRoles, "insp", t0)
	ahead[2].Status = domain.StepInProgress
	assert.ErrorIs(t, CheckWorkflow(ahead), ErrIntegrity)

	custom := NewWorkflow("cl", Roles{domain.StepReview: "chief_engineer"}, "insp", t0)
	assert.Equal(t, "chief_engineer", custom[2].RequiredRole)
	assert.Equal(t, "approver", custom[3].RequiredRole)
}

func lookupFrom(actors ...Actor) ActorLookup {
	return func(id string) (Actor, error) {
		for _, a := range actors {
			if a.ID == id {
				return a, nil
			}
		}
		return Actor{ID: id}, nil
	}
}

// completeAll marks every step after creation completed by actorID.
func completeAll(c domain.Checklist, actorID string) domain.Checklist {
	out := Clone(c)
	for i := 1; i < len(out.Workflow); i++ {
		out.Workflow[i].Status = domain.StepCompleted
		out.Workflow[i].CompletedBy = actorID
	}
	out.Workflow[3].Decision = domain.DecisionApproved
	return out
}

func TestVerifyProgressAcceptsLegalProgress(t *testing.T) {
	lookup := lookupFrom(inspector, reviewer, approver)
	base := newTestChecklist(t, boolItem("a", true))
	next := runToApproval(t, base)
	next = advance(t, next, ActionComplete, domain.StepApproval, approver)

	require.NoError(t, VerifyProgress(base.Workflow, next, Policy{}, lookup))
	require.NoError(t, VerifyProgress(nil, next, Policy{Roles: DefaultRoles}, lookup))
	require.NoError(t, VerifyProgress(next.Workflow, next, Policy{}, lookupFrom()))

	// an assignee completes without holding the role
	started := advance(t, base, ActionStart, domain.StepInspection, inspector)
	assigned, _, err := AdvanceWorkflow(started, WorkflowCommand{Action: ActionAssign, Step: domain.StepInspection, Actor: inspector, Assignee: "cadet", At: t0})
	require.NoError(t, err)
	done, _, err := AdvanceWorkflow(assigned, WorkflowCommand{Action: ActionComplete, Step: domain.StepInspection, Actor: Actor{ID: "cadet"}, At: t0})
	require.NoError(t, err)
	assert.NoError(t, VerifyProgress(assigned.Workflow, done, Policy{}, lookup))
}

func TestVerifyProgressRejectsUnattributableSteps(t *testing.T) {
	lookup := lookupFrom(inspector, reviewer, approver)
	base := newTestChecklist(t, boolItem("a", true))
	var v *WorkflowViolation

	err := VerifyProgress(base.Workflow, completeAll(base, inspector.ID), Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.StepReview, v.Step)
	assert.Equal(t, "required role", v.Precondition)

	err = VerifyProgress(nil, completeAll(base, inspector.ID), Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.StepReview, v.Step)

	err = VerifyProgress(base.Workflow, completeAll(base, "stowaway"), Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, domain.StepInspection, v.Step)

	anonymous := completeAll(base, "")
	err = VerifyProgress(base.Workflow, anonymous, Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "completion attributed", v.Precondition)

	relabelled := completeAll(base, inspector.ID)
	relabelled.Workflow[2].RequiredRole = "inspector"
	err = VerifyProgress(base.Workflow, relabelled, Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "required role unchanged", v.Precondition)
}

func TestVerifyProgressRunsStepGates(t *testing.T) {
	lookup := lookupFrom(inspector, reviewer, approver)
	gauge := domain.ChecklistItem{ID: "p", Title: "p", Type: domain.ItemMeasurement, Required: true, Category: "engine",
		ValidationRules: []domain.ValidationRule{{Type: domain.RuleRange, Value: map[string]any{"min": 2.0, "max": 6.0}, Severity: domain.SeverityError}}}
	base := newTestChecklist(t, gauge)
	started := advance(t, base, ActionStart, domain.StepInspection, inspector)
	var v *WorkflowViolation

	inspected := Clone(started)
	inspected.Items[0].Value = 9.0
	inspected.Workflow[1].Status = domain.StepCompleted
	inspected.Workflow[1].CompletedBy = inspector.ID
	err := VerifyProgress(started.Workflow, inspected, Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "no blocking validation failure", v.Precondition)

	inspected.Items[0].Value = 4.0
	require.NoError(t, VerifyProgress(started.Workflow, inspected, Policy{}, lookup))

	skipped := Clone(inspected)
	skipped.Workflow[2].Status = domain.StepSkipped
	err = VerifyProgress(started.Workflow, skipped, Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "step skippable", v.Precondition)

	undecided := completeAll(inspected, "")
	undecided.Workflow[1].CompletedBy = inspector.ID
	undecided.Workflow[2].CompletedBy = reviewer.ID
	undecided.Workflow[3].CompletedBy = approver.ID
	undecided.Workflow[3].Decision = ""
	undecided.Workflow[4].CompletedBy = approver.ID
	err = VerifyProgress(started.Workflow, undecided, Policy{}, lookup)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, "approval decision", v.Precondition)
}
