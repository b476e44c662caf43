package compliance

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"vesselcheck/internal/domain"
)

// ActionEditItem labels violations raised by item edits. It is not a workflow command.
const ActionEditItem Action = "edit_item"

// Event is emitted by a command and appended to the event log by the caller.
type Event struct {
	Type       domain.EventType
	EntityKind string
	EntityID   string
	ActorID    string
	Payload    map[string]any
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// touch marks a local mutation.
func touch(c *domain.Checklist, at time.Time) {
	c.UpdatedAt = timestamp(at)
	c.Revision++
	c.SyncStatus = domain.SyncPending
}

// refresh recomputes every derived field.
func refresh(c *domain.Checklist) {
	c.Status = DeriveStatus(c.Workflow)
	c.ComplianceScore = Score(c.Items)
}

// Clone returns a deep copy so commands never share state with their input.
func Clone(c domain.Checklist) domain.Checklist {
	out := c
	out.Items = make([]domain.ChecklistItem, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = cloneItem(it)
	}
	out.Workflow = slices.Clone(c.Workflow)
	if c.ComplianceScore != nil {
		v := *c.ComplianceScore
		out.ComplianceScore = &v
	}
	if c.Analysis != nil {
		a := *c.Analysis
		a.Anomalies = slices.Clone(a.Anomalies)
		a.Suggestions = slices.Clone(a.Suggestions)
		a.MissingItems = slices.Clone(a.MissingItems)
		a.Inconsistencies = slices.Clone(a.Inconsistencies)
		a.PredictiveInsights = slices.Clone(a.PredictiveInsights)
		out.Analysis = &a
	}
	return out
}

func cloneItem(it domain.ChecklistItem) domain.ChecklistItem {
	out := it
	out.Value = cloneValue(it.Value)
	out.Dependencies = slices.Clone(it.Dependencies)
	out.Options = slices.Clone(it.Options)
	out.Evidence = slices.Clone(it.Evidence)
	if it.MinValue != nil {
		v := *it.MinValue
		out.MinValue = &v
	}
	if it.MaxValue != nil {
		v := *it.MaxValue
		out.MaxValue = &v
	}
	if it.ValidationRules != nil {
		out.ValidationRules = make([]domain.ValidationRule, len(it.ValidationRules))
		for i, r := range it.ValidationRules {
			r.Value = cloneValue(r.Value)
			if r.AIResult != nil {
				ai := *r.AIResult
				r.AIResult = &ai
			}
			out.ValidationRules[i] = r
		}
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	}
	return v
}

// Params carries the checklist-level fields supplied at creation.
type Params struct {
	ID          string
	Title       string
	Type        domain.ChecklistType
	Version     string
	VesselID    string
	VesselName  string
	InspectorID string
	Location    string
	Priority    domain.Priority
	DueDate     string
	Notes       string
}

// NewChecklist instantiates a checklist with every item pending and the creation step
// completed by the inspector. Dangling and cyclic dependencies are rejected.
func NewChecklist(p Params, items []domain.ChecklistItem, roles Roles, now time.Time) (domain.Checklist, error) {
	var problems []string
	if strings.TrimSpace(p.ID) == "" {
		problems = append(problems, "id is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		problems = append(problems, "title is required")
	}
	if !p.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown checklist type %q", p.Type))
	}
	if strings.TrimSpace(p.VesselID) == "" {
		problems = append(problems, "vessel id is required")
	}
	if strings.TrimSpace(p.InspectorID) == "" {
		problems = append(problems, "inspector id is required")
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityMedium
	}
	if !validPriority(p.Priority) {
		problems = append(problems, fmt.Sprintf("unknown priority %q", p.Priority))
	}
	if p.DueDate != "" {
		if _, ok := parseTimestamp(p.DueDate); !ok {
			problems = append(problems, "due date must be RFC3339")
		}
	}
	if p.Version == "" {
		p.Version = "1"
	}

	copied := make([]domain.ChecklistItem, len(items))
	for i, it := range items {
		it = cloneItem(it)
		it.Status = domain.ItemPending
		it.Timestamp = ""
		it.Inspector = ""
		v, err := NormalizeValue(it.Value)
		if err != nil {
			problems = append(problems, fmt.Sprintf("item %s: %v", it.ID, err))
		}
		it.Value = v
		copied[i] = it
	}
	problems = append(problems, checkItems(copied, true)...)
	if len(problems) > 0 {
		return domain.Checklist{}, &IntegrityError{Problems: problems}
	}
	if err := NewGraph(copied).DetectCycles(); err != nil {
		return domain.Checklist{}, err
	}

	ts := timestamp(now)
	c := domain.Checklist{
		ID:          p.ID,
		Title:       p.Title,
		Type:        p.Type,
		Version:     p.Version,
		Revision:    1,
		VesselID:    p.VesselID,
		VesselName:  p.VesselName,
		InspectorID: p.InspectorID,
		Location:    p.Location,
		Items:       copied,
		Workflow:    NewWorkflow(p.ID, roles, p.InspectorID, now),
		Priority:    p.Priority,
		DueDate:     p.DueDate,
		Notes:       p.Notes,
		SyncStatus:  domain.SyncPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	refresh(&c)
	return c, nil
}

func validPriority(p domain.Priority) bool {
	switch p {
	case domain.PriorityLow, domain.PriorityMedium, domain.PriorityHigh, domain.PriorityCritical:
		return true
	}
	return false
}

// checkItems reports per-item structural problems. Dangling references are only reported
// when strict is set.
func checkItems(items []domain.ChecklistItem, strict bool) []string {
	var problems []string
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			problems = append(problems, "item with empty id")
			continue
		}
		if seen[it.ID] {
			problems = append(problems, fmt.Sprintf("duplicate item id %s", it.ID))
		}
		seen[it.ID] = true
		if !it.Type.Valid() {
			problems = append(problems, fmt.Sprintf("item %s: unknown type %q", it.ID, it.Type))
			continue
		}
		if !it.Status.Valid() {
			problems = append(problems, fmt.Sprintf("item %s: unknown status %q", it.ID, it.Status))
		}
		if err := CheckValue(it, it.Value); err != nil {
			problems = append(problems, err.Error())
		}
		if slices.Contains(it.Dependencies, it.ID) {
			problems = append(problems, fmt.Sprintf("item %s depends on itself", it.ID))
		}
	}
	if strict {
		g := NewGraph(items)
		for _, it := range items {
			if d := g.Dangling(it); len(d) > 0 {
				problems = append(problems, fmt.Sprintf("item %s: dangling_dependency %s", it.ID, strings.Join(d, ",")))
			}
		}
	}
	return problems
}

// CheckIntegrity runs the load-time checks on a stored checklist. Dangling references are
// tolerated here; they keep the affected items blocked.
func CheckIntegrity(c domain.Checklist) error {
	var problems []string
	if strings.TrimSpace(c.ID) == "" {
		problems = append(problems, "id is required")
	}
	if !c.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown checklist type %q", c.Type))
	}
	problems = append(problems, checkItems(c.Items, false)...)
	var ie *IntegrityError
	if err := CheckWorkflow(c.Workflow); errors.As(err, &ie) {
		problems = append(problems, ie.Problems...)
	}
	if len(problems) > 0 {
		return &IntegrityError{Problems: problems}
	}
	return NewGraph(c.Items).DetectCycles()
}

// ItemEdit changes one item. A nil Value leaves the value unchanged unless Clear is set.
type ItemEdit struct {
	ItemID   string
	Value    any
	Clear    bool
	Status   domain.ItemStatus
	Evidence []domain.Evidence
	Actor    Actor
	At       time.Time
}

// ApplyItemEdit applies edit to a copy of c and recomputes the score. Validation failures do
// not reject the edit; they are reported as an item.validation_failed event.
func ApplyItemEdit(c domain.Checklist, edit ItemEdit) (domain.Checklist, []Event, error) {
	if status := DeriveStatus(c.Workflow); status.Terminal() {
		return c, nil, fmt.Errorf("%w: checklist %s is %s", ErrChecklistLocked, c.ID, status)
	}
	active, ok := ActiveStep(c.Workflow)
	if !ok || (active.Type != domain.StepInspection && active.Type != domain.StepReview) {
		step := domain.StepInspection
		if ok {
			step = active.Type
		}
		return c, nil, &WorkflowViolation{
			Step:         step,
			Action:       ActionEditItem,
			Precondition: "inspection or review in progress",
			Detail:       fmt.Sprintf("checklist is %s", DeriveStatus(c.Workflow)),
		}
	}
	if !edit.Actor.HasRole(active.RequiredRole) {
		return c, nil, &WorkflowViolation{
			Step:         active.Type,
			Action:       ActionEditItem,
			Precondition: "required role",
			Detail:       fmt.Sprintf("role %s required", active.RequiredRole),
		}
	}
	idx := slices.IndexFunc(c.Items, func(it domain.ChecklistItem) bool { return it.ID == edit.ItemID })
	if idx < 0 {
		return c, nil, fmt.Errorf("%w: %s", ErrItemNotFound, edit.ItemID)
	}
	if edit.Status != "" && !edit.Status.Valid() {
		return c, nil, fmt.Errorf("unknown item status %q", edit.Status)
	}

	before := c.Items[idx]
	item := cloneItem(before)
	valueChanged := false
	switch {
	case edit.Clear:
		valueChanged = item.Value != nil
		item.Value = nil
	case edit.Value != nil:
		v, err := NormalizeValue(edit.Value)
		if err != nil {
			return c, nil, &ValueError{ItemID: item.ID, Type: item.Type, Reason: err.Error()}
		}
		if err := CheckValue(item, v); err != nil {
			return c, nil, err
		}
		valueChanged = !valuesEqual(item.Value, v)
		item.Value = v
	}
	item.Evidence = append(item.Evidence, edit.Evidence...)

	target := edit.Status
	if target == "" {
		switch {
		case item.Status == domain.ItemCompleted && !HasValue(item.Value):
			target = domain.ItemPending
		case item.Status == domain.ItemPending && valueChanged && HasValue(item.Value) && IsReady(item, c).Ready:
			target = domain.ItemCompleted
		default:
			target = item.Status
		}
	}
	if target == domain.ItemCompleted && (before.Status != domain.ItemCompleted || valueChanged) {
		if !HasValue(item.Value) {
			return c, nil, fmt.Errorf("%w: item %s has no value", ErrIneligible, item.ID)
		}
		if err := IsReady(item, c).Err(item.ID); err != nil {
			return c, nil, err
		}
	}
	item.Status = target
	item.Timestamp = timestamp(edit.At)
	item.Inspector = edit.Actor.ID

	out := Clone(c)
	out.Items[idx] = item
	refresh(&out)
	touch(&out, edit.At)

	payload := map[string]any{
		"item_id":     item.ID,
		"from_status": string(before.Status),
		"to_status":   string(item.Status),
		"value":       item.Value,
		"score":       out.ComplianceScore,
	}
	if len(edit.Evidence) > 0 {
		payload["evidence_added"] = len(edit.Evidence)
	}
	events := []Event{{
		Type:       domain.EventItemUpdated,
		EntityKind: "item",
		EntityID:   item.ID,
		ActorID:    edit.Actor.ID,
		Payload:    payload,
	}}
	if failures := EvaluateItem(item); len(failures) > 0 {
		events = append(events, Event{
			Type:       domain.EventItemValidationFailed,
			EntityKind: "item",
			EntityID:   item.ID,
			ActorID:    edit.Actor.ID,
			Payload:    map[string]any{"item_id": item.ID, "failures": failures},
		})
	}
	return out, events, nil
}

// anomalySeverity maps an analysis anomaly severity onto a rule severity.
func anomalySeverity(s string) domain.Severity {
	switch strings.ToLower(s) {
	case "critical", "high":
		return domain.SeverityError
	case "medium":
		return domain.SeverityWarning
	default:
		return domain.SeverityInfo
	}
}

// ApplyAnalysis records an analysis result and resolves every ai_validation rule from it.
// The compliance score is never taken from the result. Terminal checklists are returned
// unchanged.
func ApplyAnalysis(c domain.Checklist, result domain.AnalysisResult, now time.Time) (domain.Checklist, []Event) {
	if DeriveStatus(c.Workflow).Terminal() {
		return c, nil
	}
	ts := timestamp(now)
	anomalies := map[string][]domain.Anomaly{}
	for _, a := range result.Anomalies {
		anomalies[a.ItemID] = append(anomalies[a.ItemID], a)
	}

	out := Clone(c)
	updated := 0
	for i := range out.Items {
		it := &out.Items[i]
		for j := range it.ValidationRules {
			rule := &it.ValidationRules[j]
			if rule.Type != domain.RuleAIValidation {
				continue
			}
			res := &domain.AIRuleResult{Passed: true, Severity: domain.SeverityInfo, AnalyzedAt: ts}
			if found := anomalies[it.ID]; len(found) > 0 {
				worst := found[0]
				for _, a := range found[1:] {
					if severityRank(anomalySeverity(a.Severity)) > severityRank(anomalySeverity(worst.Severity)) {
						worst = a
					}
				}
				res.Passed = false
				res.Severity = anomalySeverity(worst.Severity)
				res.Message = worst.Description
				if rule.Message != "" {
					res.Message = rule.Message + ": " + worst.Description
				}
			} else if slices.Contains(result.MissingItems, it.ID) {
				res.Passed = false
				res.Severity = domain.SeverityWarning
				res.Message = "reported missing by analysis"
			}
			rule.AIResult = res
			updated++
		}
	}
	stored := result
	stored.ReceivedAt = ts
	out.Analysis = &stored
	refresh(&out)
	touch(&out, now)

	return out, []Event{{
		Type:       domain.EventAnalysisApplied,
		EntityKind: "checklist",
		EntityID:   c.ID,
		Payload: map[string]any{
			"overall_score": result.OverallScore,
			"risk_level":    result.RiskLevel,
			"anomalies":     len(result.Anomalies),
			"rules_updated": updated,
		},
	}}
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityError:
		return 2
	case domain.SeverityWarning:
		return 1
	}
	return 0
}

// BuildAnalysisRequest assembles the payload sent to the analysis service.
func BuildAnalysisRequest(c domain.Checklist, vesselMeta map[string]any) domain.AnalysisRequest {
	meta := map[string]any{
		"vessel_id":      c.VesselID,
		"checklist_type": string(c.Type),
	}
	if c.VesselName != "" {
		meta["vessel_name"] = c.VesselName
	}
	if c.Location != "" {
		meta["location"] = c.Location
	}
	maps.Copy(meta, vesselMeta)
	cl := Clone(c)
	return domain.AnalysisRequest{
		ChecklistID:  c.ID,
		Items:        cl.Items,
		VesselMeta:   meta,
		CurrentScore: Score(c.Items),
	}
}

// Serialize encodes the full record.
func Serialize(c domain.Checklist) ([]byte, error) {
	return json.Marshal(c)
}

// Deserialize decodes a record, runs the integrity checks and recomputes derived fields.
func Deserialize(data []byte) (domain.Checklist, error) {
	var c domain.Checklist
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Checklist{}, fmt.Errorf("decode checklist: %w", err)
	}
	if err := CheckIntegrity(c); err != nil {
		return domain.Checklist{}, err
	}
	if c.SyncStatus == "" {
		c.SyncStatus = domain.SyncPending
	}
	if c.Priority == "" {
		c.Priority = domain.PriorityMedium
	}
	refresh(&c)
	return c, nil
}
