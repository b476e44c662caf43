package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"vesselcheck/internal/analysis"
	"vesselcheck/internal/cache"
	"vesselcheck/internal/catalog"
	"vesselcheck/internal/compliance"
	"vesselcheck/internal/config"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine/auth"
	"vesselcheck/internal/events"
	"vesselcheck/internal/metrics"
	"vesselcheck/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Auth     auth.Service
	Config   *config.Config
	Cache    *cache.Store
	Analysis *analysis.Client
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time

	locks *keyedMutex
}

func New(db *sql.DB, cfg *config.Config) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Logger: slog.Default(),
		Now:    time.Now,
		locks:  newKeyedMutex(),
	}
	if cfg != nil && cfg.Analysis.Endpoint != "" {
		e.Analysis = analysis.New(cfg.Analysis.Endpoint, cfg.Analysis.Token, cfg.Analysis.Timeout.Std())
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// lock serializes commands on one checklist. Engines built without New share no lock table.
func (e Engine) lock(id string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(id)
}

func (e Engine) appendEvents(ctx context.Context, tx *sql.Tx, checklistID string, evts []compliance.Event) error {
	records := make([]events.Record, 0, len(evts))
	for _, ev := range evts {
		records = append(records, events.Record{Type: ev.Type, EntityKind: ev.EntityKind, EntityID: ev.EntityID, ActorID: ev.ActorID, Payload: ev.Payload})
	}
	return e.Events.AppendAll(ctx, tx, checklistID, records)
}

// cachePut mirrors a committed record into the offline cache. Cache failures never fail the
// command; the canonical store already holds the record.
func (e Engine) cachePut(ctx context.Context, c domain.Checklist) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.Put(ctx, c); err != nil {
		e.logger().Warn("offline cache write failed", "checklist_id", c.ID, "error", err)
	}
}

// CreateOptions are parameters for creating a checklist. Items override the catalog of Type.
type CreateOptions struct {
	ID         string
	Title      string
	Type       domain.ChecklistType
	VesselID   string
	VesselName string
	Location   string
	Priority   domain.Priority
	DueDate    string
	Notes      string
	Items      []domain.ChecklistItem
	ActorID    string
}

func (e Engine) CreateChecklist(ctx context.Context, opts CreateOptions) (domain.Checklist, error) {
	if e.Config == nil {
		return domain.Checklist{}, errors.New("config not loaded")
	}
	items := opts.Items
	version := ""
	title := opts.Title
	if len(items) == 0 {
		cat, err := catalog.Get(opts.Type)
		if err != nil {
			return domain.Checklist{}, err
		}
		items = cat.Items()
		version = cat.Version
		if title == "" {
			title = cat.Title
		}
	}
	if opts.VesselID == "" && e.Config.Workspace.Vessel != "" {
		opts.VesselID = e.Config.Workspace.Vessel
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	roles := e.Config.WorkflowRoles()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checklist{}, err
	}
	defer tx.Rollback()

	actor, err := e.Auth.Actor(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Checklist{}, err
	}
	if role := roles[domain.StepCreation]; !actor.HasRole(role) {
		e.Metrics.RecordViolation("create", "required role")
		return domain.Checklist{}, &compliance.WorkflowViolation{
			Step:         domain.StepCreation,
			Action:       "create",
			Precondition: "required role",
			Detail:       fmt.Sprintf("%s does not hold %s", actor.ID, role),
		}
	}
	c, err := compliance.NewChecklist(compliance.Params{
		ID:          id,
		Title:       title,
		Type:        opts.Type,
		Version:     version,
		VesselID:    opts.VesselID,
		VesselName:  opts.VesselName,
		InspectorID: actor.ID,
		Location:    opts.Location,
		Priority:    opts.Priority,
		DueDate:     opts.DueDate,
		Notes:       opts.Notes,
	}, items, roles, e.now())
	if err != nil {
		return domain.Checklist{}, err
	}
	skippable := e.Config.SkippableSteps()
	for i := range c.Workflow {
		c.Workflow[i].Skippable = slices.Contains(skippable, c.Workflow[i].Type)
	}
	if err := e.Repo.InsertChecklist(ctx, tx, c); err != nil {
		return domain.Checklist{}, err
	}
	if err := e.Events.Append(ctx, tx, events.Record{Type: domain.EventChecklistCreated, ChecklistID: c.ID, EntityKind: "checklist", EntityID: c.ID, ActorID: actor.ID, Payload: events.Payload{
		"type":      c.Type,
		"vessel_id": c.VesselID,
		"items":     len(c.Items),
		"status":    c.Status,
	}}); err != nil {
		return domain.Checklist{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Checklist{}, err
	}
	e.cachePut(ctx, c)
	e.Metrics.ObserveScore(c.ComplianceScore)
	e.logger().Info("checklist created", "checklist_id", c.ID, "type", c.Type, "vessel_id", c.VesselID, "items", len(c.Items))
	return c, nil
}

func (e Engine) GetChecklist(ctx context.Context, id string) (domain.Checklist, error) {
	return e.Repo.GetChecklist(ctx, id)
}

func (e Engine) ListChecklists(ctx context.Context, f repo.ChecklistFilters) ([]domain.ChecklistSummary, error) {
	return e.Repo.ListChecklists(ctx, f)
}

// mutate runs one command against a stored checklist under its lock and inside one
// transaction. fn returns the next record and the events to append.
func (e Engine) mutate(ctx context.Context, id, actorID string, fn func(c domain.Checklist, actor compliance.Actor) (domain.Checklist, []compliance.Event, error)) (domain.Checklist, error) {
	unlock := e.lock(id)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checklist{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetChecklistTx(ctx, tx, id)
	if err != nil {
		return domain.Checklist{}, err
	}
	actor, err := e.Auth.Actor(ctx, tx, actorID)
	if err != nil {
		return domain.Checklist{}, err
	}
	next, evts, err := fn(c, actor)
	if err != nil {
		return c, err
	}
	if len(evts) == 0 {
		return next, nil
	}
	if err := e.Repo.UpdateChecklist(ctx, tx, next, c.Revision); err != nil {
		return domain.Checklist{}, err
	}
	if err := e.appendEvents(ctx, tx, id, evts); err != nil {
		return domain.Checklist{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Checklist{}, err
	}
	e.cachePut(ctx, next)
	return next, nil
}

// ItemEditOptions change one item. Value nil leaves the value untouched unless Clear is set.
type ItemEditOptions struct {
	ItemID   string
	Value    any
	Clear    bool
	Status   domain.ItemStatus
	Evidence []domain.Evidence
	ActorID  string
}

func (e Engine) EditItem(ctx context.Context, checklistID string, opts ItemEditOptions) (domain.Checklist, error) {
	var failures map[string]int
	c, err := e.mutate(ctx, checklistID, opts.ActorID, func(c domain.Checklist, actor compliance.Actor) (domain.Checklist, []compliance.Event, error) {
		next, evts, err := compliance.ApplyItemEdit(c, compliance.ItemEdit{
			ItemID:   opts.ItemID,
			Value:    opts.Value,
			Clear:    opts.Clear,
			Status:   opts.Status,
			Evidence: opts.Evidence,
			Actor:    actor,
			At:       e.now(),
		})
		failures = failureCounts(evts)
		return next, evts, err
	})
	if err != nil {
		e.recordRejection(checklistID, compliance.ActionEditItem, err)
		return c, err
	}
	item, _ := c.Item(opts.ItemID)
	e.Metrics.RecordItemEdit(string(item.Status), failures)
	e.Metrics.ObserveScore(c.ComplianceScore)
	e.logger().Debug("item updated", "checklist_id", checklistID, "item_id", opts.ItemID, "status", item.Status, "actor_id", opts.ActorID)
	return c, nil
}

func failureCounts(evts []compliance.Event) map[string]int {
	out := map[string]int{}
	for _, ev := range evts {
		if ev.Type != domain.EventItemValidationFailed {
			continue
		}
		failures, _ := ev.Payload["failures"].([]compliance.ValidationFailure)
		for _, f := range failures {
			out[string(f.Severity)]++
		}
	}
	return out
}

func (e Engine) recordRejection(checklistID string, action compliance.Action, err error) {
	var v *compliance.WorkflowViolation
	if errors.As(err, &v) {
		e.Metrics.RecordViolation(string(v.Action), v.Precondition)
		e.logger().Warn("workflow violation", "checklist_id", checklistID, "action", v.Action, "step", v.Step, "precondition", v.Precondition)
		return
	}
	e.logger().Warn("command rejected", "checklist_id", checklistID, "action", action, "error", err)
}

// AdvanceOptions submit one workflow command.
type AdvanceOptions struct {
	Action   compliance.Action
	Step     domain.StepType
	Decision string
	Assignee string
	Comment  string
	ActorID  string
}

func (e Engine) Advance(ctx context.Context, checklistID string, opts AdvanceOptions) (domain.Checklist, error) {
	c, err := e.mutate(ctx, checklistID, opts.ActorID, func(c domain.Checklist, actor compliance.Actor) (domain.Checklist, []compliance.Event, error) {
		return compliance.AdvanceWorkflow(c, compliance.WorkflowCommand{
			Action:   opts.Action,
			Step:     opts.Step,
			Actor:    actor,
			Decision: opts.Decision,
			Assignee: opts.Assignee,
			Comment:  opts.Comment,
			At:       e.now(),
		})
	})
	if err != nil {
		e.recordRejection(checklistID, opts.Action, err)
		return c, err
	}
	e.Metrics.RecordTransition(string(opts.Step), string(opts.Action))
	e.logger().Info("workflow advanced", "checklist_id", checklistID, "action", opts.Action, "step", opts.Step, "status", c.Status, "actor_id", opts.ActorID)
	return c, nil
}

// Validation is the full rule evaluation of a checklist.
type Validation struct {
	ChecklistID string                         `json:"checklist_id"`
	Failures    []compliance.ValidationFailure `json:"failures"`
	Blocking    []compliance.ValidationFailure `json:"blocking"`
	BySeverity  map[domain.Severity]int        `json:"by_severity"`
	Blocked     map[string][]string            `json:"blocked"`
	Order       []string                       `json:"order"`
	Submittable bool                           `json:"submittable"`
}

func (e Engine) Validate(ctx context.Context, checklistID string) (Validation, error) {
	c, err := e.Repo.GetChecklist(ctx, checklistID)
	if err != nil {
		return Validation{}, err
	}
	return Validate(c)
}

// Validate evaluates c without touching storage.
func Validate(c domain.Checklist) (Validation, error) {
	rep := compliance.EvaluateChecklist(c)
	order, err := compliance.NewGraph(c.Items).Order()
	if err != nil {
		return Validation{}, err
	}
	v := Validation{
		ChecklistID: c.ID,
		Failures:    rep.Failures,
		Blocking:    rep.Blocking(),
		BySeverity:  rep.BySeverity(),
		Blocked:     compliance.Blocked(c),
		Order:       order,
	}
	if v.Blocking == nil {
		v.Blocking = []compliance.ValidationFailure{}
	}
	v.Submittable = len(v.Blocking) == 0 && len(v.Blocked) == 0
	return v, nil
}

func (e Engine) Summary(ctx context.Context, checklistID string) (compliance.Summary, error) {
	c, err := e.Repo.GetChecklist(ctx, checklistID)
	if err != nil {
		return compliance.Summary{}, err
	}
	return compliance.Summarize(c), nil
}

// ListEvents returns the event log, newest first.
func (e Engine) ListEvents(ctx context.Context, limit int, cursor int64, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEventsFrom(ctx, limit, cursor, f)
}

// RefreshGauges updates the store-derived gauges.
func (e Engine) RefreshGauges(ctx context.Context) error {
	if e.Metrics == nil {
		return nil
	}
	counts, err := e.Repo.CountChecklistsByStatus(ctx)
	if err != nil {
		return err
	}
	e.Metrics.SetChecklistsByStatus(counts)
	e.Metrics.UpdateDatabaseConnections(e.DB)
	return nil
}

// VesselMeta is the vessel context sent with analysis requests.
func (e Engine) VesselMeta(extra map[string]any) map[string]any {
	meta := map[string]any{}
	if e.Config != nil {
		meta["workspace"] = e.Config.Workspace.ID
		if e.Config.Workspace.Vessel != "" {
			meta["vessel_id"] = e.Config.Workspace.Vessel
		}
	}
	maps.Copy(meta, extra)
	return meta
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
