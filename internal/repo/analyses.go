package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"vesselcheck/internal/domain"
)

// InsertAnalysis keeps every analysis received for a checklist; the record only holds the latest.
func (r Repo) InsertAnalysis(ctx context.Context, tx *sql.Tx, checklistID string, res domain.AnalysisResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO analyses(checklist_id, overall_score, risk_level, result_json, received_at) VALUES (?,?,?,?,?)`,
		checklistID, res.OverallScore, nullable(res.RiskLevel), string(data), res.ReceivedAt)
	return err
}

// ListAnalyses returns the analysis history of a checklist, newest first.
func (r Repo) ListAnalyses(ctx context.Context, checklistID string, limit int) ([]domain.AnalysisResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT result_json FROM analyses WHERE checklist_id=? ORDER BY id DESC LIMIT ?`, checklistID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AnalysisResult
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var res domain.AnalysisResult
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
