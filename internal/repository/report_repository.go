package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/relief-ledger-api/internal/models"
)

// ReportRepository reads disaster reports and stores moderator need targets.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// GetByID fetches a report.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	const query = `SELECT id, title, location_name, severity, needs, created_at FROM reports WHERE id = $1`
	var report models.Report
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// ListTargets returns every override recorded for a report.
func (r *ReportRepository) ListTargets(ctx context.Context, reportID string) ([]models.NeedTarget, error) {
	const query = `SELECT report_id, item_name, target, set_by, set_at FROM report_need_targets WHERE report_id = $1`
	var targets []models.NeedTarget
	if err := r.db.SelectContext(ctx, &targets, query, reportID); err != nil {
		return nil, fmt.Errorf("list need targets: %w", err)
	}
	return targets, nil
}

// UpsertTarget sets the override for one item, replacing any previous value.
// Item names are stored normalized so lookups ignore case and spacing.
func (r *ReportRepository) UpsertTarget(ctx context.Context, target *models.NeedTarget) error {
	if target.SetAt.IsZero() {
		target.SetAt = time.Now().UTC()
	}
	target.ItemName = models.NormalizeItemName(target.ItemName)
	const query = `INSERT INTO report_need_targets (report_id, item_name, target, set_by, set_at)
VALUES (:report_id, :item_name, :target, :set_by, :set_at)
ON CONFLICT (report_id, item_name) DO UPDATE SET target = EXCLUDED.target, set_by = EXCLUDED.set_by, set_at = EXCLUDED.set_at`
	if _, err := r.db.NamedExecContext(ctx, query, target); err != nil {
		return fmt.Errorf("upsert need target: %w", err)
	}
	return nil
}

// DeleteTarget removes an override. It reports whether one existed.
func (r *ReportRepository) DeleteTarget(ctx context.Context, reportID, itemName string) (bool, error) {
	const query = `DELETE FROM report_need_targets WHERE report_id = $1 AND item_name = $2`
	res, err := r.db.ExecContext(ctx, query, reportID, models.NormalizeItemName(strings.TrimSpace(itemName)))
	if err != nil {
		return false, fmt.Errorf("delete need target: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
