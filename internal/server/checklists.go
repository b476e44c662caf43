package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"vesselcheck/internal/catalog"
	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
	"vesselcheck/internal/engine"
	"vesselcheck/internal/repo"
)

type checklistPath struct {
	ChecklistID string `path:"checklist_id"`
}

type checklistBody struct {
	Body domain.Checklist `json:"body"`
}

func registerCatalogs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-catalogs",
		Method:      http.MethodGet,
		Path:        "/catalogs",
		Summary:     "List embedded item catalogs",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []CatalogSummary `json:"body"`
	}, error) {
		out := []CatalogSummary{}
		for _, t := range catalog.Types() {
			c, err := catalog.Get(t)
			if err != nil {
				return nil, handleError(err)
			}
			out = append(out, catalogSummary(c))
		}
		return &struct {
			Body []CatalogSummary `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-catalog",
		Method:      http.MethodGet,
		Path:        "/catalogs/{type}",
		Summary:     "Get the item catalog of a checklist type",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Type string `path:"type"`
	}) (*struct {
		Body CatalogResponse `json:"body"`
	}, error) {
		c, err := catalog.Get(domain.ChecklistType(input.Type))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CatalogResponse `json:"body"`
		}{Body: CatalogResponse{CatalogSummary: catalogSummary(c), Entries: c.Items()}}, nil
	})
}

func registerChecklists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-checklist",
		Method:        http.MethodPost,
		Path:          "/checklists",
		Summary:       "Create checklist",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateChecklistRequest `json:"body"`
	}) (*checklistBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req := input.Body
		opts := engine.CreateOptions{
			ID:         req.ID,
			Title:      req.Title,
			Type:       domain.ChecklistType(req.Type),
			VesselID:   req.VesselID,
			VesselName: req.VesselName,
			Location:   req.Location,
			Priority:   domain.Priority(req.Priority),
			DueDate:    req.DueDate,
			Notes:      req.Notes,
			ActorID:    actorID,
		}
		if len(req.Items) > 0 {
			items, err := customItems(opts.Type, req.Title, req.Items)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "invalid_checklist", err.Error(), nil)
			}
			opts.Items = items
		}
		c, err := e.CreateChecklist(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checklists",
		Method:      http.MethodGet,
		Path:        "/checklists",
		Summary:     "List checklists, most recently updated first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		VesselID   string `query:"vessel_id"`
		Type       string `query:"type"`
		Status     string `query:"status"`
		SyncStatus string `query:"sync_status" enum:"synced,pending_sync,sync_failed"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body ChecklistListResponse `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		ts, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListChecklists(ctx, repo.ChecklistFilters{
			VesselID:        input.VesselID,
			Type:            input.Type,
			Status:          input.Status,
			SyncStatus:      input.SyncStatus,
			Limit:           limit + 1,
			CursorUpdatedAt: ts,
			CursorID:        id,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := ChecklistListResponse{Items: nonNilSlice(items)}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.UpdatedAt, last.ID)
			resp.Items = items[:limit]
		}
		return &struct {
			Body ChecklistListResponse `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}",
		Summary:     "Get checklist",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *checklistPath) (*checklistBody, error) {
		c, err := e.GetChecklist(ctx, input.ChecklistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}/validation",
		Summary:     "Evaluate every validation rule and dependency",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *checklistPath) (*struct {
		Body engine.Validation `json:"body"`
	}, error) {
		v, err := e.Validate(ctx, input.ChecklistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Validation `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "score-checklist",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}/score",
		Summary:     "Compliance score and progress, overall and per category",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *checklistPath) (*struct {
		Body compliance.Summary `json:"body"`
	}, error) {
		s, err := e.Summary(ctx, input.ChecklistID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body compliance.Summary `json:"body"`
		}{Body: s}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "edit-item",
		Method:      http.MethodPatch,
		Path:        "/checklists/{checklist_id}/items/{item_id}",
		Summary:     "Set an item's value, status or evidence",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ChecklistID string          `path:"checklist_id"`
		ItemID      string          `path:"item_id"`
		Body        ItemEditRequest `json:"body"`
	}) (*checklistBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := rawBodyMap(ctx)
		valueRaw, hasValue := raw["value"]
		if !hasValue && input.Body.Status == "" && len(input.Body.Evidence) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "value, status or evidence required", nil)
		}
		c, err := e.EditItem(ctx, input.ChecklistID, engine.ItemEditOptions{
			ItemID:   input.ItemID,
			Value:    input.Body.Value,
			Clear:    hasValue && isNullRaw(valueRaw),
			Status:   domain.ItemStatus(input.Body.Status),
			Evidence: input.Body.Evidence,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})
}

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "workflow-command",
		Method:      http.MethodPost,
		Path:        "/checklists/{checklist_id}/workflow",
		Summary:     "Start, complete, skip or assign a workflow step",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ChecklistID string                 `path:"checklist_id"`
		Body        WorkflowCommandRequest `json:"body"`
	}) (*checklistBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Advance(ctx, input.ChecklistID, engine.AdvanceOptions{
			Action:   compliance.Action(input.Body.Action),
			Step:     domain.StepType(input.Body.Step),
			Decision: input.Body.Decision,
			Assignee: input.Body.Assignee,
			Comment:  input.Body.Comment,
			ActorID:  actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})
}

func registerSync(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "sync-checklist",
		Method:      http.MethodPost,
		Path:        "/checklists/{checklist_id}/sync",
		Summary:     "Reconcile a pushed local copy against the stored copy",
		Description: "The body is the full checklist record. Unknown checklists are adopted.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *checklistPath) (*struct {
		Body engine.SyncResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var incoming domain.Checklist
		if err := decodeBody(ctx, &incoming); err != nil {
			return nil, err
		}
		if incoming.ID != input.ChecklistID {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "checklist id does not match path", map[string]any{"id": incoming.ID})
		}
		res, err := e.Sync(ctx, incoming, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SyncResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerAnalysis(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-checklist",
		Method:      http.MethodPost,
		Path:        "/checklists/{checklist_id}/analysis",
		Summary:     "Send the checklist to the analysis service and apply the result",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		ChecklistID string         `path:"checklist_id"`
		Body        AnalyzeRequest `json:"body,omitempty" required:"false"`
	}) (*checklistBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.Analyze(ctx, input.ChecklistID, actorID, e.VesselMeta(input.Body.VesselMeta))
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-analysis",
		Method:      http.MethodPut,
		Path:        "/checklists/{checklist_id}/analysis",
		Summary:     "Apply an analysis result received out of band",
		Description: "The body is the analysis result as returned by the analysis service.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *checklistPath) (*checklistBody, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var res domain.AnalysisResult
		if err := decodeBody(ctx, &res); err != nil {
			return nil, err
		}
		c, err := e.ApplyAnalysis(ctx, input.ChecklistID, actorID, res)
		if err != nil {
			return nil, handleError(err)
		}
		return &checklistBody{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analysis-history",
		Method:      http.MethodGet,
		Path:        "/checklists/{checklist_id}/analysis",
		Summary:     "Stored analysis results, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ChecklistID string `path:"checklist_id"`
		Limit       int    `query:"limit" default:"20"`
	}) (*struct {
		Body AnalysisHistoryResponse `json:"body"`
	}, error) {
		items, err := e.AnalysisHistory(ctx, input.ChecklistID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AnalysisHistoryResponse `json:"body"`
		}{Body: AnalysisHistoryResponse{Items: nonNilSlice(items)}}, nil
	})
}
