package engine

import (
	"context"
	"errors"
	"time"

	"vesselcheck/internal/analysis"
	"vesselcheck/internal/compliance"
	"vesselcheck/internal/domain"
)

// Analyze sends the checklist to the analysis service and applies the result. The external
// call runs outside the checklist lock; edits made meanwhile are kept because the result
// only touches ai_validation rule outcomes.
func (e Engine) Analyze(ctx context.Context, checklistID, actorID string, vesselMeta map[string]any) (domain.Checklist, error) {
	if e.Analysis == nil {
		return domain.Checklist{}, analysis.ErrNotConfigured
	}
	c, err := e.Repo.GetChecklist(ctx, checklistID)
	if err != nil {
		return domain.Checklist{}, err
	}
	if _, err := e.Auth.Actor(ctx, nil, actorID); err != nil {
		return domain.Checklist{}, err
	}
	req := compliance.BuildAnalysisRequest(c, e.VesselMeta(vesselMeta))
	started := time.Now()
	res, err := e.Analysis.Analyze(ctx, req)
	elapsed := time.Since(started).Seconds()
	if err != nil {
		e.Metrics.ObserveAnalysis("error", elapsed)
		e.logger().Warn("analysis failed", "checklist_id", checklistID, "error", err)
		return domain.Checklist{}, err
	}
	e.Metrics.ObserveAnalysis("ok", elapsed)
	return e.ApplyAnalysis(ctx, checklistID, actorID, res)
}

// ApplyAnalysis stores an analysis result received out of band. Terminal checklists are
// returned unchanged.
func (e Engine) ApplyAnalysis(ctx context.Context, checklistID, actorID string, res domain.AnalysisResult) (domain.Checklist, error) {
	if err := analysis.Check(res); err != nil {
		return domain.Checklist{}, err
	}
	unlock := e.lock(checklistID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Checklist{}, err
	}
	defer tx.Rollback()

	c, err := e.Repo.GetChecklistTx(ctx, tx, checklistID)
	if err != nil {
		return domain.Checklist{}, err
	}
	next, evts := compliance.ApplyAnalysis(c, res, e.now())
	if len(evts) == 0 {
		return next, nil
	}
	if err := e.Repo.UpdateChecklist(ctx, tx, next, c.Revision); err != nil {
		return domain.Checklist{}, err
	}
	if next.Analysis == nil {
		return domain.Checklist{}, errors.New("analysis not recorded")
	}
	if err := e.Repo.InsertAnalysis(ctx, tx, checklistID, *next.Analysis); err != nil {
		return domain.Checklist{}, err
	}
	for i := range evts {
		if evts[i].ActorID == "" {
			evts[i].ActorID = actorID
		}
	}
	if err := e.appendEvents(ctx, tx, checklistID, evts); err != nil {
		return domain.Checklist{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Checklist{}, err
	}
	e.cachePut(ctx, next)
	e.logger().Info("analysis applied", "checklist_id", checklistID, "overall_score", res.OverallScore, "risk_level", res.RiskLevel, "anomalies", len(res.Anomalies))
	return next, nil
}

func (e Engine) AnalysisHistory(ctx context.Context, checklistID string, limit int) ([]domain.AnalysisResult, error) {
	return e.Repo.ListAnalyses(ctx, checklistID, limit)
}
