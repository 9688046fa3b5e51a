package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-signal-engine/internal/models"
)

// CreateQualityReport stores an audit report. Re-auditing a batch replaces
// the previous verdict.
func (db *DB) CreateQualityReport(ctx context.Context, r *models.QualityAuditReport) error {
	issues := r.Issues
	if issues == nil {
		issues = []models.QualityIssue{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	query := `
		INSERT INTO quality_audit_reports (batch_id, real_data_ratio, total_data_points, real_data_points,
			issues, recommendation, audited_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (batch_id) DO UPDATE SET
			real_data_ratio = EXCLUDED.real_data_ratio,
			total_data_points = EXCLUDED.total_data_points,
			real_data_points = EXCLUDED.real_data_points,
			issues = EXCLUDED.issues,
			recommendation = EXCLUDED.recommendation,
			audited_at = EXCLUDED.audited_at
		RETURNING id
	`
	err = db.conn.QueryRowContext(ctx, query,
		r.BatchID, decimal.NewFromFloat(r.RealDataRatio), r.TotalDataPoints, r.RealDataPoints,
		issuesJSON, r.Recommendation, r.AuditedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("failed to create quality report: %w", err)
	}
	return nil
}

// LatestQualityReport returns the most recently audited report
func (db *DB) LatestQualityReport(ctx context.Context) (*models.QualityAuditReport, error) {
	query := `
		SELECT id, batch_id, real_data_ratio, total_data_points, real_data_points, issues, recommendation, audited_at
		FROM quality_audit_reports
		ORDER BY audited_at DESC, id DESC
		LIMIT 1
	`
	var r models.QualityAuditReport
	var ratio decimal.Decimal
	var issuesJSON []byte
	err := db.conn.QueryRowContext(ctx, query).Scan(
		&r.ID, &r.BatchID, &ratio, &r.TotalDataPoints, &r.RealDataPoints, &issuesJSON, &r.Recommendation, &r.AuditedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quality report: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quality report: %w", err)
	}
	r.RealDataRatio = ratio.InexactFloat64()
	if err := json.Unmarshal(issuesJSON, &r.Issues); err != nil {
		return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
	}
	return &r, nil
}
