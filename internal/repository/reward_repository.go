package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/database"
)

// RewardRepository is the donor reward ledger. Credits are keyed by offer id
// so replaying a credit is a no-op.
type RewardRepository struct {
	db     *sqlx.DB
	runner *database.TxRunner
}

// NewRewardRepository constructs the repository.
func NewRewardRepository(db *sqlx.DB, runner *database.TxRunner) *RewardRepository {
	return &RewardRepository{db: db, runner: runner}
}

// CreditOnce credits donorID with amount for offerID unless that offer was
// already credited. It reports whether this call applied the credit.
func (r *RewardRepository) CreditOnce(ctx context.Context, offerID, donorID string, amount int) (bool, error) {
	applied := false
	err := r.runner.Run(ctx, func(tx *sqlx.Tx) error {
		applied = false
		now := time.Now().UTC()
		const insertCredit = `INSERT INTO reward_credits (offer_id, donor_id, amount, credited_at)
VALUES ($1, $2, $3, $4) ON CONFLICT (offer_id) DO NOTHING`
		res, err := tx.ExecContext(ctx, insertCredit, offerID, donorID, amount, now)
		if err != nil {
			return fmt.Errorf("insert reward credit: %w", err)
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if inserted == 0 {
			return nil
		}
		const bumpBalance = `INSERT INTO donor_rewards (donor_id, points, donations_count, updated_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (donor_id) DO UPDATE SET points = donor_rewards.points + EXCLUDED.points,
    donations_count = donor_rewards.donations_count + 1, updated_at = EXCLUDED.updated_at`
		if _, err := tx.ExecContext(ctx, bumpBalance, donorID, amount, now); err != nil {
			return fmt.Errorf("update donor rewards: %w", err)
		}
		applied = true
		return nil
	})
	return applied, err
}

// ListUncredited returns inspected root offers that never received their
// credit, oldest inspection first. Only offer and donor ids are populated.
func (r *RewardRepository) ListUncredited(ctx context.Context, limit int) ([]models.RewardCredit, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT o.id AS offer_id, o.donor_id FROM offers o
LEFT JOIN reward_credits rc ON rc.offer_id = o.id
WHERE o.parent_id IS NULL AND o.quality_check = $1 AND rc.offer_id IS NULL
ORDER BY o.received_at LIMIT $2`
	var pending []models.RewardCredit
	if err := r.db.SelectContext(ctx, &pending, query, models.QualityCheckPassed, limit); err != nil {
		return nil, fmt.Errorf("list uncredited offers: %w", err)
	}
	return pending, nil
}

// GetCredit returns the credit issued for an offer.
func (r *RewardRepository) GetCredit(ctx context.Context, offerID string) (*models.RewardCredit, error) {
	const query = `SELECT offer_id, donor_id, amount, credited_at FROM reward_credits WHERE offer_id = $1`
	var credit models.RewardCredit
	if err := r.db.GetContext(ctx, &credit, query, offerID); err != nil {
		return nil, err
	}
	return &credit, nil
}

// GetBalance returns a donor's balance; donors without credits get a zero balance.
func (r *RewardRepository) GetBalance(ctx context.Context, donorID string) (*models.DonorRewards, error) {
	const query = `SELECT donor_id, points, donations_count, updated_at FROM donor_rewards WHERE donor_id = $1`
	var balance models.DonorRewards
	if err := r.db.GetContext(ctx, &balance, query, donorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.DonorRewards{DonorID: donorID}, nil
		}
		return nil, fmt.Errorf("get donor rewards: %w", err)
	}
	return &balance, nil
}
