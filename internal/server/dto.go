package server

import (
	"encoding/json"

	"vesselcheck/internal/catalog"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/repo"
)

// Request DTOs

type ItemSpec struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Type          string     `json:"type" enum:"boolean,text,number,select,multiselect,file,photo,signature,measurement"`
	Required      bool       `json:"required,omitempty"`
	Category      string     `json:"category,omitempty"`
	Order         int        `json:"order,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	Min           *float64   `json:"min,omitempty"`
	Max           *float64   `json:"max,omitempty"`
	RangeSeverity string     `json:"range_severity,omitempty" enum:"error,warning,info"`
	Options       []string   `json:"options,omitempty"`
	DependsOn     []string   `json:"depends_on,omitempty"`
	Rules         []RuleSpec `json:"rules,omitempty"`
}

type RuleSpec struct {
	Type     string `json:"type" enum:"range,regex,custom,ai_validation"`
	Value    any    `json:"value,omitempty"`
	Message  string `json:"message,omitempty"`
	Severity string `json:"severity" enum:"error,warning,info"`
}

type CreateChecklistRequest struct {
	ID         string     `json:"id,omitempty"`
	Title      string     `json:"title,omitempty"`
	Type       string     `json:"type" enum:"dp,machine_routine,nautical_routine,safety,environmental,custom"`
	VesselID   string     `json:"vessel_id,omitempty"`
	VesselName string     `json:"vessel_name,omitempty"`
	Location   string     `json:"location,omitempty"`
	Priority   string     `json:"priority,omitempty" enum:"low,medium,high,critical"`
	DueDate    string     `json:"due_date,omitempty" format:"date-time"`
	Notes      string     `json:"notes,omitempty"`
	Items      []ItemSpec `json:"items,omitempty" doc:"Custom item list; defaults to the catalog of type"`
}

type ItemEditRequest struct {
	Value    any               `json:"value,omitempty" doc:"New value; send null to clear"`
	Status   string            `json:"status,omitempty" enum:"pending,completed,failed,na,review_required"`
	Evidence []domain.Evidence `json:"evidence,omitempty"`
}

type WorkflowCommandRequest struct {
	Action   string `json:"action" enum:"start,complete,skip,assign"`
	Step     string `json:"step" enum:"creation,inspection,review,approval,completion"`
	Decision string `json:"decision,omitempty" enum:"approved,rejected"`
	Assignee string `json:"assignee,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

type AnalyzeRequest struct {
	VesselMeta map[string]any `json:"vessel_meta,omitempty"`
}

type RiskRequest struct {
	Probability int `json:"probability" minimum:"1" maximum:"5"`
	Impact      int `json:"impact" minimum:"1" maximum:"5"`
}

type RoleChangeRequest struct {
	Role string `json:"role"`
}

type APIKeyCreateRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID    string   `json:"actor_id"`
	Roles      []string `json:"roles,omitempty"`
	TTLSeconds int      `json:"ttl_seconds,omitempty" minimum:"0"`
}

// Response DTOs

type ChecklistListResponse struct {
	Items      []domain.ChecklistSummary `json:"items"`
	NextCursor string                    `json:"next_cursor,omitempty"`
}

type CatalogSummary struct {
	Type       domain.ChecklistType `json:"type"`
	Title      string               `json:"title"`
	Version    string               `json:"version"`
	Items      int                  `json:"items"`
	Categories []string             `json:"categories"`
}

type CatalogResponse struct {
	CatalogSummary
	Entries []domain.ChecklistItem `json:"entries"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	ChecklistID string         `json:"checklist_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type AnalysisHistoryResponse struct {
	Items []domain.AnalysisResult `json:"items"`
}

type ActorResponse struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	Roles     []string `json:"roles"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKeyCreateResponse struct {
	APIKeyResponse
	Key string `json:"key" doc:"Plaintext key; shown once"`
}

type WhoAmIResponse struct {
	ActorID string   `json:"actor_id"`
	Roles   []string `json:"roles"`
	Source  string   `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Mapping helpers

func (s ItemSpec) entry() catalog.Entry {
	e := catalog.Entry{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		Type:          s.Type,
		Required:      s.Required,
		Category:      s.Category,
		Order:         s.Order,
		Unit:          s.Unit,
		Min:           s.Min,
		Max:           s.Max,
		RangeSeverity: s.RangeSeverity,
		Options:       s.Options,
		DependsOn:     s.DependsOn,
	}
	for _, r := range s.Rules {
		e.Rules = append(e.Rules, catalog.Rule{Type: r.Type, Value: r.Value, Message: r.Message, Severity: r.Severity})
	}
	return e
}

// customItems builds and validates a custom item list the same way embedded catalogs are.
func customItems(t domain.ChecklistType, title string, specs []ItemSpec) ([]domain.ChecklistItem, error) {
	cat := catalog.Catalog{Type: t, Title: title}
	for i, s := range specs {
		e := s.entry()
		if e.Order == 0 {
			e.Order = i + 1
		}
		cat.Entries = append(cat.Entries, e)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat.Items(), nil
}

func catalogSummary(c catalog.Catalog) CatalogSummary {
	return CatalogSummary{
		Type:       c.Type,
		Title:      c.Title,
		Version:    c.Version,
		Items:      len(c.Entries),
		Categories: nonNilSlice(c.Categories()),
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		ChecklistID: e.ChecklistID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Payload:     decodeJSONMap(e.Payload),
	}
}

func actorResponse(a repo.Actor) ActorResponse {
	return ActorResponse{ID: a.ID, CreatedAt: a.CreatedAt, Roles: nonNilSlice(a.Roles)}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
