package compliance

import (
	"fmt"
	"slices"
	"time"

	"vesselcheck/internal/domain"
)

type Action string

const (
	ActionStart    Action = "start"
	ActionComplete Action = "complete"
	ActionSkip     Action = "skip"
	ActionAssign   Action = "assign"
)

func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionComplete, ActionSkip, ActionAssign:
		return true
	}
	return false
}

// Actor is whoever submits a command, with the roles they currently hold.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// Roles maps each workflow step to the role required to act on it.
type Roles map[domain.StepType]string

// DefaultRoles is the role assignment used when configuration does not override it.
var DefaultRoles = Roles{
	domain.StepCreation:   "inspector",
	domain.StepInspection: "inspector",
	domain.StepReview:     "reviewer",
	domain.StepApproval:   "approver",
	domain.StepCompletion: "approver",
}

func (r Roles) roleFor(t domain.StepType) string {
	if role, ok := r[t]; ok && role != "" {
		return role
	}
	return DefaultRoles[t]
}

// NewWorkflow builds the fixed five-step workflow with creation already completed by creator.
func NewWorkflow(checklistID string, roles Roles, creator string, at time.Time) []domain.WorkflowStep {
	now := timestamp(at)
	steps := make([]domain.WorkflowStep, 0, len(domain.StepSequence))
	for _, t := range domain.StepSequence {
		s := domain.WorkflowStep{
			ID:           checklistID + ":" + string(t),
			Type:         t,
			Status:       domain.StepPending,
			RequiredRole: roles.roleFor(t),
		}
		if t == domain.StepCreation {
			s.Status = domain.StepCompleted
			s.AssignedTo = creator
			s.StartedAt = now
			s.CompletedBy = creator
			s.CompletedAt = now
		}
		steps = append(steps, s)
	}
	return steps
}

// CheckWorkflow validates the fixed order and the preceding-step invariant.
func CheckWorkflow(steps []domain.WorkflowStep) error {
	var problems []string
	if len(steps) != len(domain.StepSequence) {
		problems = append(problems, fmt.Sprintf("workflow must have %d steps, has %d", len(domain.StepSequence), len(steps)))
	}
	for i, s := range steps {
		if i < len(domain.StepSequence) && s.Type != domain.StepSequence[i] {
			problems = append(problems, fmt.Sprintf("step %d is %s, expected %s", i, s.Type, domain.StepSequence[i]))
		}
		if !s.Status.Valid() {
			problems = append(problems, fmt.Sprintf("step %s has unknown status %q", s.Type, s.Status))
		}
		if s.Skippable && (s.Type == domain.StepReview || s.Type == domain.StepApproval) {
			problems = append(problems, fmt.Sprintf("step %s cannot be skippable", s.Type))
		}
		if s.Status == domain.StepInProgress || s.Status == domain.StepCompleted {
			if blocker := firstOpenBefore(steps, i); blocker >= 0 {
				problems = append(problems, fmt.Sprintf("step %s is %s while %s is %s", s.Type, s.Status, steps[blocker].Type, steps[blocker].Status))
			}
		}
	}
	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return nil
}

// firstOpenBefore returns the index of the first step before i that is neither completed
// nor skipped, or -1.
func firstOpenBefore(steps []domain.WorkflowStep, i int) int {
	for j := 0; j < i && j < len(steps); j++ {
		if steps[j].Status != domain.StepCompleted && steps[j].Status != domain.StepSkipped {
			return j
		}
	}
	return -1
}

// DeriveStatus maps the furthest-advanced non-skipped step onto the checklist status.
func DeriveStatus(steps []domain.WorkflowStep) domain.ChecklistStatus {
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		switch s.Status {
		case domain.StepInProgress:
			switch s.Type {
			case domain.StepInspection:
				return domain.StatusInProgress
			case domain.StepReview, domain.StepApproval:
				return domain.StatusPendingReview
			case domain.StepCompletion:
				return domain.StatusApproved
			default:
				return domain.StatusDraft
			}
		case domain.StepCompleted:
			switch s.Type {
			case domain.StepInspection:
				return domain.StatusInProgress
			case domain.StepReview:
				return domain.StatusPendingReview
			case domain.StepApproval:
				if s.Decision == domain.DecisionRejected {
					return domain.StatusRejected
				}
				return domain.StatusApproved
			case domain.StepCompletion:
				return domain.StatusCompleted
			default:
				return domain.StatusDraft
			}
		}
	}
	return domain.StatusDraft
}

// ActiveStep returns the step currently in progress.
func ActiveStep(steps []domain.WorkflowStep) (domain.WorkflowStep, bool) {
	for _, s := range steps {
		if s.Status == domain.StepInProgress {
			return s, true
		}
	}
	return domain.WorkflowStep{}, false
}

// WorkflowCommand is one workflow event submitted by an actor.
type WorkflowCommand struct {
	Action   Action
	Step     domain.StepType
	Actor    Actor
	Decision string
	Assignee string
	Comment  string
	At       time.Time
}

// AdvanceWorkflow applies cmd to a copy of c. Illegal commands return a WorkflowViolation and
// leave c untouched.
func AdvanceWorkflow(c domain.Checklist, cmd WorkflowCommand) (domain.Checklist, []Event, error) {
	violation := func(precondition, detail string) error {
		return &WorkflowViolation{Step: cmd.Step, Action: cmd.Action, Precondition: precondition, Detail: detail}
	}
	if !cmd.Action.Valid() {
		return c, nil, violation("known action", fmt.Sprintf("unknown action %q", cmd.Action))
	}
	if cmd.Actor.ID == "" {
		return c, nil, violation("actor identified", "actor id is required")
	}
	if status := DeriveStatus(c.Workflow); status.Terminal() {
		return c, nil, violation("checklist open", fmt.Sprintf("checklist is %s", status))
	}
	idx := slices.IndexFunc(c.Workflow, func(s domain.WorkflowStep) bool { return s.Type == cmd.Step })
	if idx < 0 {
		return c, nil, violation("step exists", fmt.Sprintf("unknown step %q", cmd.Step))
	}
	step := c.Workflow[idx]
	now := timestamp(cmd.At)
	from := step.Status

	switch cmd.Action {
	case ActionStart:
		if step.Status != domain.StepPending {
			return c, nil, violation("step pending", fmt.Sprintf("step is %s", step.Status))
		}
		if !cmd.Actor.HasRole(step.RequiredRole) {
			return c, nil, violation("required role", fmt.Sprintf("role %s required", step.RequiredRole))
		}
		if j := firstOpenBefore(c.Workflow, idx); j >= 0 {
			return c, nil, violation("preceding steps done", fmt.Sprintf("step %s is %s", c.Workflow[j].Type, c.Workflow[j].Status))
		}
		step.Status = domain.StepInProgress
		step.StartedAt = now

	case ActionComplete:
		if step.Status != domain.StepInProgress {
			return c, nil, violation("step in progress", fmt.Sprintf("step is %s", step.Status))
		}
		if step.AssignedTo != "" {
			if step.AssignedTo != cmd.Actor.ID {
				return c, nil, violation("assignee", fmt.Sprintf("step assigned to %s", step.AssignedTo))
			}
		} else if !cmd.Actor.HasRole(step.RequiredRole) {
			return c, nil, violation("required role", fmt.Sprintf("role %s required", step.RequiredRole))
		}
		switch step.Type {
		case domain.StepInspection:
			if err := inspectionGate(c, cmd); err != nil {
				return c, nil, err
			}
		case domain.StepApproval:
			if review, _ := c.Step(domain.StepReview); review.Status != domain.StepCompleted {
				return c, nil, violation("review completed", fmt.Sprintf("review is %s", review.Status))
			}
			decision := cmd.Decision
			if decision == "" {
				decision = domain.DecisionApproved
			}
			if decision != domain.DecisionApproved && decision != domain.DecisionRejected {
				return c, nil, violation("approval decision", fmt.Sprintf("unknown decision %q", cmd.Decision))
			}
			step.Decision = decision
		}
		step.Status = domain.StepCompleted
		step.CompletedBy = cmd.Actor.ID
		step.CompletedAt = now

	case ActionSkip:
		if step.Status != domain.StepPending {
			return c, nil, violation("step pending", fmt.Sprintf("step is %s", step.Status))
		}
		if !step.Skippable || step.Type == domain.StepReview || step.Type == domain.StepApproval {
			return c, nil, violation("step skippable", "step cannot be skipped")
		}
		if !cmd.Actor.HasRole(step.RequiredRole) {
			return c, nil, violation("required role", fmt.Sprintf("role %s required", step.RequiredRole))
		}
		if j := firstOpenBefore(c.Workflow, idx); j >= 0 {
			return c, nil, violation("preceding steps done", fmt.Sprintf("step %s is %s", c.Workflow[j].Type, c.Workflow[j].Status))
		}
		step.Status = domain.StepSkipped

	case ActionAssign:
		if step.Status == domain.StepCompleted || step.Status == domain.StepSkipped {
			return c, nil, violation("step open", fmt.Sprintf("step is %s", step.Status))
		}
		if cmd.Assignee == "" {
			return c, nil, violation("assignee given", "assignee is required")
		}
		if !cmd.Actor.HasRole(step.RequiredRole) {
			return c, nil, violation("required role", fmt.Sprintf("role %s required", step.RequiredRole))
		}
		step.AssignedTo = cmd.Assignee
	}
	if cmd.Comment != "" {
		step.Comment = cmd.Comment
	}

	out := Clone(c)
	out.Workflow[idx] = step
	out.Status = DeriveStatus(out.Workflow)
	touch(&out, cmd.At)

	payload := map[string]any{
		"step":          string(step.Type),
		"action":        string(cmd.Action),
		"from":          string(from),
		"to":            string(step.Status),
		"status_before": string(c.Status),
		"status_after":  string(out.Status),
	}
	if step.Decision != "" && cmd.Action == ActionComplete {
		payload["decision"] = step.Decision
	}
	if cmd.Action == ActionAssign {
		payload["assignee"] = cmd.Assignee
	}
	events := []Event{{
		Type:       domain.WorkflowEvent(string(cmd.Action)),
		EntityKind: "workflow_step",
		EntityID:   step.ID,
		ActorID:    cmd.Actor.ID,
		Payload:    payload,
	}}
	if out.Status != c.Status {
		events = append(events, Event{
			Type:       domain.EventChecklistStatusChanged,
			EntityKind: "checklist",
			EntityID:   c.ID,
			ActorID:    cmd.Actor.ID,
			Payload:    map[string]any{"from": string(c.Status), "to": string(out.Status)},
		})
	}
	return out, events, nil
}

// inspectionGate allows inspection to complete only with no blocking validation failure and
// no item blocked by a dangling or cyclic dependency.
func inspectionGate(c domain.Checklist, cmd WorkflowCommand) error {
	if err := NewGraph(c.Items).DetectCycles(); err != nil {
		return &WorkflowViolation{
			Step:         cmd.Step,
			Action:       cmd.Action,
			Precondition: "no cyclic dependency",
			Detail:       err.Error(),
		}
	}
	if blocked := Blocked(c); len(blocked) > 0 {
		ids := make([]string, 0, len(blocked))
		for id := range blocked {
			ids = append(ids, id)
		}
		slices.Sort(ids)
		return &WorkflowViolation{
			Step:         cmd.Step,
			Action:       cmd.Action,
			Precondition: "no dangling dependency",
			Detail:       fmt.Sprintf("%d item(s) reference missing dependencies", len(ids)),
			Blocked:      ids,
		}
	}
	if blocking := EvaluateChecklist(c).Blocking(); len(blocking) > 0 {
		return &WorkflowViolation{
			Step:         cmd.Step,
			Action:       cmd.Action,
			Precondition: "no blocking validation failure",
			Detail:       fmt.Sprintf("%d error-severity failure(s) on required items", len(blocking)),
			Failures:     blocking,
		}
	}
	return nil
}

// ActorLookup resolves the actor recorded on a step. Unknown ids resolve to an actor with no
// roles.
type ActorLookup func(actorID string) (Actor, error)

// Policy is the local workflow configuration applied to checklists seen for the first time.
type Policy struct {
	Roles     Roles
	Skippable []domain.StepType
}

// VerifyProgress checks every step that next moved past before as if its command had been
// submitted here. A completion needs a recorded actor holding the step's role or assigned to
// it. Inspection must pass its gate and approval needs a decision. Only skippable steps may be
// skipped, and no step may change its role or skippable flag. A nil before is a checklist
// seen for the first time and is checked against policy. Creation is completed at
// instantiation and is not checked.
func VerifyProgress(before []domain.WorkflowStep, next domain.Checklist, policy Policy, lookup ActorLookup) error {
	if err := CheckWorkflow(next.Workflow); err != nil {
		return err
	}
	if before != nil && len(before) != len(next.Workflow) {
		return &IntegrityError{Problems: []string{fmt.Sprintf("workflow has %d steps, stored copy %d", len(next.Workflow), len(before))}}
	}
	for i, s := range next.Workflow {
		if s.Type == domain.StepCreation {
			continue
		}
		prev := domain.WorkflowStep{
			Type:         s.Type,
			Status:       domain.StepPending,
			RequiredRole: policy.Roles.roleFor(s.Type),
			Skippable:    slices.Contains(policy.Skippable, s.Type),
		}
		if before != nil {
			prev = before[i]
		}
		violation := func(action Action, precondition, detail string) error {
			return &WorkflowViolation{Step: s.Type, Action: action, Precondition: precondition, Detail: detail}
		}
		if s.RequiredRole != prev.RequiredRole {
			return violation(ActionAssign, "required role unchanged", fmt.Sprintf("role %s, expected %s", s.RequiredRole, prev.RequiredRole))
		}
		if s.Skippable != prev.Skippable {
			return violation(ActionSkip, "skippable unchanged", fmt.Sprintf("skippable %t, expected %t", s.Skippable, prev.Skippable))
		}
		switch {
		case s.Status == domain.StepCompleted && prev.Status != domain.StepCompleted:
			if s.CompletedBy == "" {
				return violation(ActionComplete, "completion attributed", "completed_by is empty")
			}
			actor, err := lookup(s.CompletedBy)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", s.CompletedBy, err)
			}
			if !actor.HasRole(prev.RequiredRole) && (prev.AssignedTo == "" || prev.AssignedTo != actor.ID) {
				return violation(ActionComplete, "required role", fmt.Sprintf("%s lacks role %s", actor.ID, prev.RequiredRole))
			}
			switch s.Type {
			case domain.StepInspection:
				if err := inspectionGate(next, WorkflowCommand{Action: ActionComplete, Step: s.Type}); err != nil {
					return err
				}
			case domain.StepApproval:
				if s.Decision != domain.DecisionApproved && s.Decision != domain.DecisionRejected {
					return violation(ActionComplete, "approval decision", fmt.Sprintf("unknown decision %q", s.Decision))
				}
			}
		case s.Status == domain.StepSkipped && prev.Status != domain.StepSkipped:
			if !prev.Skippable || s.Type == domain.StepReview || s.Type == domain.StepApproval {
				return violation(ActionSkip, "step skippable", "step cannot be skipped")
			}
		}
	}
	return nil
}
