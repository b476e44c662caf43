package compliance

import (
	"errors"
	"fmt"
	"strings"

	"vesselcheck/internal/domain"
)

var (
	ErrIneligible         = errors.New("item not eligible for completion")
	ErrDanglingDependency = errors.New("dangling_dependency")
	ErrDependencyNotReady = errors.New("dependency not completed")
	ErrCyclicDependency   = errors.New("cyclic_dependency")
	ErrWorkflowViolation  = errors.New("workflow violation")
	ErrSyncConflict       = errors.New("sync conflict")
	ErrIntegrity          = errors.New("checklist integrity")
	ErrInvalidValue       = errors.New("invalid item value")
	ErrItemNotFound       = errors.New("item not found")
	ErrChecklistLocked    = errors.New("checklist is locked")
)

// ValidationFailure is one failed rule on one item.
type ValidationFailure struct {
	ItemID    string          `json:"item_id"`
	RuleIndex int             `json:"rule_index"`
	RuleType  domain.RuleType `json:"rule_type"`
	Severity  domain.Severity `json:"severity"`
	Message   string          `json:"message"`
	Required  bool            `json:"required"`
}

func (f ValidationFailure) Error() string {
	return fmt.Sprintf("item %s: %s rule failed (%s): %s", f.ItemID, f.RuleType, f.Severity, f.Message)
}

// ValueError reports a value that does not match the item's declared type.
type ValueError struct {
	ItemID string
	Type   domain.ItemType
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("item %s (%s): %s", e.ItemID, e.Type, e.Reason)
}

func (e *ValueError) Unwrap() error { return ErrInvalidValue }

// DependencyError reports why an item cannot become completed.
type DependencyError struct {
	ItemID   string
	Pending  []string
	Dangling []string
}

func (e *DependencyError) Error() string {
	var parts []string
	if len(e.Dangling) > 0 {
		parts = append(parts, "dangling dependencies "+strings.Join(e.Dangling, ","))
	}
	if len(e.Pending) > 0 {
		parts = append(parts, "dependencies not completed "+strings.Join(e.Pending, ","))
	}
	return fmt.Sprintf("item %s not ready: %s", e.ItemID, strings.Join(parts, "; "))
}

func (e *DependencyError) Is(target error) bool {
	switch target {
	case ErrIneligible:
		return true
	case ErrDanglingDependency:
		return len(e.Dangling) > 0
	case ErrDependencyNotReady:
		return len(e.Pending) > 0
	}
	return false
}

// CyclicDependencyError carries one cycle found in the dependency graph.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("cyclic_dependency: %s", strings.Join(e.Cycle, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// IntegrityError collects structural problems found while loading a checklist.
type IntegrityError struct {
	Problems []string
}

func (e *IntegrityError) Error() string {
	return "checklist integrity: " + strings.Join(e.Problems, "; ")
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// WorkflowViolation identifies the precondition an illegal transition failed.
type WorkflowViolation struct {
	Step         domain.StepType
	Action       Action
	Precondition string
	Detail       string
	Failures     []ValidationFailure
	Blocked      []string
}

func (v *WorkflowViolation) Error() string {
	msg := fmt.Sprintf("workflow violation: %s %s: %s", v.Action, v.Step, v.Precondition)
	if v.Detail != "" {
		msg += ": " + v.Detail
	}
	return msg
}

func (v *WorkflowViolation) Unwrap() error { return ErrWorkflowViolation }

// SyncConflict lists the items the reconciler could not merge.
type SyncConflict struct {
	ChecklistID string
	ItemIDs     []string
	Reason      string
}

func (c *SyncConflict) Error() string {
	if len(c.ItemIDs) == 0 {
		return fmt.Sprintf("sync conflict on %s: %s", c.ChecklistID, c.Reason)
	}
	return fmt.Sprintf("sync conflict on %s: %s (%s)", c.ChecklistID, c.Reason, strings.Join(c.ItemIDs, ","))
}

func (c *SyncConflict) Unwrap() error { return ErrSyncConflict }
