package domain

import "strings"

type ItemType string

const (
	ItemBoolean     ItemType = "boolean"
	ItemText        ItemType = "text"
	ItemNumber      ItemType = "number"
	ItemSelect      ItemType = "select"
	ItemMultiSelect ItemType = "multiselect"
	ItemFile        ItemType = "file"
	ItemPhoto       ItemType = "photo"
	ItemSignature   ItemType = "signature"
	ItemMeasurement ItemType = "measurement"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemBoolean, ItemText, ItemNumber, ItemSelect, ItemMultiSelect, ItemFile, ItemPhoto, ItemSignature, ItemMeasurement:
		return true
	}
	return false
}

type ItemStatus string

const (
	ItemPending        ItemStatus = "pending"
	ItemCompleted      ItemStatus = "completed"
	ItemFailed         ItemStatus = "failed"
	ItemNA             ItemStatus = "na"
	ItemReviewRequired ItemStatus = "review_required"
)

func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemCompleted, ItemFailed, ItemNA, ItemReviewRequired:
		return true
	}
	return false
}

// Resolved reports whether the item counts toward completion progress.
func (s ItemStatus) Resolved() bool {
	return s == ItemCompleted || s == ItemFailed || s == ItemNA
}

type RuleType string

const (
	RuleRange        RuleType = "range"
	RuleRegex        RuleType = "regex"
	RuleCustom       RuleType = "custom"
	RuleAIValidation RuleType = "ai_validation"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) Valid() bool {
	return s == SeverityError || s == SeverityWarning || s == SeverityInfo
}

type ChecklistType string

const (
	ChecklistDP              ChecklistType = "dp"
	ChecklistMachineRoutine  ChecklistType = "machine_routine"
	ChecklistNauticalRoutine ChecklistType = "nautical_routine"
	ChecklistSafety          ChecklistType = "safety"
	ChecklistEnvironmental   ChecklistType = "environmental"
	ChecklistCustom          ChecklistType = "custom"
)

func (t ChecklistType) Valid() bool {
	switch t {
	case ChecklistDP, ChecklistMachineRoutine, ChecklistNauticalRoutine, ChecklistSafety, ChecklistEnvironmental, ChecklistCustom:
		return true
	}
	return false
}

type ChecklistStatus string

const (
	StatusDraft         ChecklistStatus = "draft"
	StatusInProgress    ChecklistStatus = "in_progress"
	StatusPendingReview ChecklistStatus = "pending_review"
	StatusApproved      ChecklistStatus = "approved"
	StatusRejected      ChecklistStatus = "rejected"
	StatusCompleted     ChecklistStatus = "completed"
)

// Terminal reports whether the checklist revision accepts no further mutation.
func (s ChecklistStatus) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

type StepType string

const (
	StepCreation   StepType = "creation"
	StepInspection StepType = "inspection"
	StepReview     StepType = "review"
	StepApproval   StepType = "approval"
	StepCompletion StepType = "completion"
)

// StepSequence is the fixed, non-reorderable workflow order.
var StepSequence = []StepType{StepCreation, StepInspection, StepReview, StepApproval, StepCompletion}

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepSkipped    StepStatus = "skipped"
)

func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepInProgress, StepCompleted, StepSkipped:
		return true
	}
	return false
}

type SyncStatus string

const (
	SyncSynced  SyncStatus = "synced"
	SyncPending SyncStatus = "pending_sync"
	SyncFailed  SyncStatus = "sync_failed"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

type Evidence struct {
	ID         string `json:"id"`
	Kind       string `json:"kind" enum:"file,photo,document"`
	URI        string `json:"uri"`
	Note       string `json:"note,omitempty"`
	CapturedAt string `json:"captured_at,omitempty" format:"date-time"`
}

// AIRuleResult is the outcome of an ai_validation rule as reported by the analysis service.
type AIRuleResult struct {
	Passed     bool     `json:"passed"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message,omitempty"`
	AnalyzedAt string   `json:"analyzed_at" format:"date-time"`
}

type ValidationRule struct {
	Type     RuleType      `json:"type" enum:"range,regex,custom,ai_validation"`
	Value    any           `json:"value,omitempty"`
	Message  string        `json:"message"`
	Severity Severity      `json:"severity" enum:"error,warning,info"`
	AIResult *AIRuleResult `json:"ai_result,omitempty"`
}

type ChecklistItem struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description,omitempty"`
	Type            ItemType         `json:"type" enum:"boolean,text,number,select,multiselect,file,photo,signature,measurement"`
	Required        bool             `json:"required"`
	Category        string           `json:"category"`
	Order           int              `json:"order"`
	Value           any              `json:"value,omitempty"`
	Status          ItemStatus       `json:"status" enum:"pending,completed,failed,na,review_required"`
	ValidationRules []ValidationRule `json:"validation_rules,omitempty"`
	Dependencies    []string         `json:"dependencies,omitempty"`
	Unit            string           `json:"unit,omitempty"`
	MinValue        *float64         `json:"min_value,omitempty"`
	MaxValue        *float64         `json:"max_value,omitempty"`
	Options         []string         `json:"options,omitempty"`
	Evidence        []Evidence       `json:"evidence,omitempty"`
	Timestamp       string           `json:"timestamp,omitempty" format:"date-time"`
	Inspector       string           `json:"inspector,omitempty"`
}

type WorkflowStep struct {
	ID           string     `json:"id"`
	Type         StepType   `json:"type" enum:"creation,inspection,review,approval,completion"`
	Status       StepStatus `json:"status" enum:"pending,in_progress,completed,skipped"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	RequiredRole string     `json:"required_role"`
	Skippable    bool       `json:"skippable,omitempty"`
	StartedAt    string     `json:"started_at,omitempty" format:"date-time"`
	CompletedBy  string     `json:"completed_by,omitempty"`
	CompletedAt  string     `json:"completed_at,omitempty" format:"date-time"`
	Decision     string     `json:"decision,omitempty" enum:"approved,rejected"`
	Comment      string     `json:"comment,omitempty"`
}

type Checklist struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Type            ChecklistType   `json:"type" enum:"dp,machine_routine,nautical_routine,safety,environmental,custom"`
	Version         string          `json:"version"`
	Revision        int             `json:"revision"`
	VesselID        string          `json:"vessel_id"`
	VesselName      string          `json:"vessel_name,omitempty"`
	InspectorID     string          `json:"inspector_id"`
	Location        string          `json:"location,omitempty"`
	Status          ChecklistStatus `json:"status" enum:"draft,in_progress,pending_review,approved,rejected,completed"`
	Items           []ChecklistItem `json:"items"`
	Workflow        []WorkflowStep  `json:"workflow"`
	ComplianceScore *int            `json:"compliance_score"`
	Priority        Priority        `json:"priority" enum:"low,medium,high,critical"`
	DueDate         string          `json:"due_date,omitempty" format:"date-time"`
	Notes           string          `json:"notes,omitempty"`
	SyncStatus      SyncStatus      `json:"sync_status" enum:"synced,pending_sync,sync_failed"`
	Analysis        *AnalysisResult `json:"analysis,omitempty"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}

// Item returns the item with the given id.
func (c Checklist) Item(id string) (ChecklistItem, bool) {
	for _, it := range c.Items {
		if it.ID == id {
			return it, true
		}
	}
	return ChecklistItem{}, false
}

// Step returns the workflow step of the given type.
func (c Checklist) Step(t StepType) (WorkflowStep, bool) {
	for _, s := range c.Workflow {
		if s.Type == t {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

type Anomaly struct {
	ItemID      string  `json:"item_id"`
	Type        string  `json:"type"`
	Severity    string  `json:"severity" enum:"low,medium,high,critical"`
	Description string  `json:"description"`
	Suggestion  string  `json:"suggestion,omitempty"`
	Confidence  float64 `json:"confidence" minimum:"0" maximum:"1"`
}

type AnalysisResult struct {
	OverallScore          int       `json:"overall_score" minimum:"0" maximum:"100"`
	Anomalies             []Anomaly `json:"anomalies"`
	Suggestions           []string  `json:"suggestions"`
	RiskLevel             string    `json:"risk_level"`
	MissingItems          []string  `json:"missing_items"`
	Inconsistencies       []string  `json:"inconsistencies"`
	ComparisonWithHistory string    `json:"comparison_with_history,omitempty"`
	PredictiveInsights    []string  `json:"predictive_insights"`
	ReceivedAt            string    `json:"received_at,omitempty" format:"date-time"`
}

type AnalysisRequest struct {
	ChecklistID  string          `json:"checklist_id"`
	Items        []ChecklistItem `json:"items"`
	VesselMeta   map[string]any  `json:"vessel_meta"`
	CurrentScore *int            `json:"current_score"`
}

// EventType names an entry of the audit log.
type EventType string

const (
	EventChecklistCreated       EventType = "checklist.created"
	EventChecklistStatusChanged EventType = "checklist.status_changed"
	EventChecklistSynced        EventType = "checklist.synced"
	EventChecklistSyncConflict  EventType = "checklist.sync_conflict"
	EventChecklistSyncFailed    EventType = "checklist.sync_failed"
	EventChecklistSyncRejected  EventType = "checklist.sync_rejected"
	EventItemUpdated            EventType = "item.updated"
	EventItemValidationFailed   EventType = "item.validation_failed"
	EventAnalysisApplied        EventType = "analysis.applied"
	EventRoleGranted            EventType = "actor.role_granted"
	EventRoleRevoked            EventType = "actor.role_revoked"
	EventAPIKeyCreated          EventType = "actor.api_key_created"
	EventAPIKeyRevoked          EventType = "actor.api_key_revoked"
)

// WorkflowEvent is emitted for each accepted workflow action (workflow.start, ...).
func WorkflowEvent(action string) EventType {
	return EventType("workflow." + action)
}

// Scope is the part before the first dot: checklist, item, workflow, analysis or actor.
func (t EventType) Scope() string {
	scope, _, _ := strings.Cut(string(t), ".")
	return scope
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	ChecklistID string `json:"checklist_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ChecklistSummary is the listing projection of a stored checklist record.
type ChecklistSummary struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Type            ChecklistType   `json:"type"`
	VesselID        string          `json:"vessel_id"`
	Status          ChecklistStatus `json:"status"`
	SyncStatus      SyncStatus      `json:"sync_status"`
	ComplianceScore *int            `json:"compliance_score"`
	Priority        Priority        `json:"priority"`
	DueDate         string          `json:"due_date,omitempty"`
	Revision        int             `json:"revision"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
}
