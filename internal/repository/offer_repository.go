package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/database"
)

const offerColumns = `id, parent_id, donor_id, donor_name, report_id, item_name, quantity, unit, category, description,
       image_url, location_name, latitude, longitude, delivery_method, status, claimant_id, claimant_name,
       claimant_contact, reserved_at, deadline_at, received_at, received_by, quality_check, reject_reason,
       distributed_at, distributed_by, pickup_missed, audit_note, released_at, created_at, updated_at`

const insertOfferQuery = `INSERT INTO offers (` + offerColumns + `)
VALUES (:id, :parent_id, :donor_id, :donor_name, :report_id, :item_name, :quantity, :unit, :category, :description,
        :image_url, :location_name, :latitude, :longitude, :delivery_method, :status, :claimant_id, :claimant_name,
        :claimant_contact, :reserved_at, :deadline_at, :received_at, :received_by, :quality_check, :reject_reason,
        :distributed_at, :distributed_by, :pickup_missed, :audit_note, :released_at, :created_at, :updated_at)`

// OfferTx is the set of offer mutations available inside a ledger transaction.
// Every quantity or status change goes through it.
type OfferTx interface {
	// LockByID re-reads the offer and holds a row lock until commit.
	LockByID(ctx context.Context, id string) (*models.Offer, error)
	Insert(ctx context.Context, offer *models.Offer) error
	// UpdateQuantity rewrites the quantity of an available offer.
	UpdateQuantity(ctx context.Context, id string, quantity int, at time.Time) error
	// SaveState persists lifecycle fields of offer, guarded by its previous status.
	SaveState(ctx context.Context, offer *models.Offer, from models.OfferStatus) error
	InsertAudit(ctx context.Context, log *models.AuditLog) error
}

// OfferRepository persists offers and reservations in Postgres.
type OfferRepository struct {
	db     *sqlx.DB
	runner *database.TxRunner
}

// NewOfferRepository constructs the repository. runner drives WithinTx.
func NewOfferRepository(db *sqlx.DB, runner *database.TxRunner) *OfferRepository {
	return &OfferRepository{db: db, runner: runner}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func prepareInsert(offer *models.Offer) {
	if offer.ID == "" {
		offer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if offer.CreatedAt.IsZero() {
		offer.CreatedAt = now
	}
	if offer.UpdatedAt.IsZero() {
		offer.UpdatedAt = offer.CreatedAt
	}
	if offer.DeliveryMethod == "" {
		offer.DeliveryMethod = models.DeliveryDropOff
	}
}

// Create inserts a new offer outside any ledger transaction.
func (r *OfferRepository) Create(ctx context.Context, offer *models.Offer) error {
	prepareInsert(offer)
	if _, err := r.db.NamedExecContext(ctx, insertOfferQuery, offer); err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return nil
}

// GetByID fetches an offer by id.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`
	if err := r.db.GetContext(ctx, &offer, query, id); err != nil {
		return nil, err
	}
	return &offer, nil
}

// List returns offers that satisfy filter, newest first.
func (r *OfferRepository) List(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT ` + offerColumns + ` FROM offers`)

	conditions := make([]string, 0, 6)
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ReportID != "" {
		args = append(args, filter.ReportID)
		conditions = append(conditions, fmt.Sprintf("report_id = $%d", len(args)))
	}
	if filter.ItemName != "" {
		args = append(args, models.NormalizeItemName(filter.ItemName))
		conditions = append(conditions, fmt.Sprintf(`lower(regexp_replace(trim(item_name), '\s+', ' ', 'g')) = $%d`, len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.DonorID != "" {
		args = append(args, filter.DonorID)
		conditions = append(conditions, fmt.Sprintf("donor_id = $%d", len(args)))
	}
	if filter.ClaimantID != "" {
		args = append(args, filter.ClaimantID)
		conditions = append(conditions, fmt.Sprintf("claimant_id = $%d", len(args)))
	}
	if filter.ParentID != "" {
		if !validID(filter.ParentID) {
			return []models.Offer{}, nil
		}
		args = append(args, filter.ParentID)
		conditions = append(conditions, fmt.Sprintf("parent_id = $%d", len(args)))
	}
	if filter.ReservationsOnly {
		conditions = append(conditions, "parent_id IS NOT NULL")
	}
	if filter.ClaimableOnly {
		conditions = append(conditions, "quantity > 0")
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	if !filter.Unpaged {
		limit := filter.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))
	}

	var offers []models.Offer
	if err := r.db.SelectContext(ctx, &offers, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	return offers, nil
}

// ListCountedByReport returns every staged or available offer for a report.
// It is unpaginated because need progress sums all of them.
func (r *OfferRepository) ListCountedByReport(ctx context.Context, reportID string) ([]models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE report_id = $1 AND status IN ($2, $3)`
	var offers []models.Offer
	if err := r.db.SelectContext(ctx, &offers, query, reportID, models.OfferStatusStaged, models.OfferStatusAvailable); err != nil {
		return nil, fmt.Errorf("list counted offers: %w", err)
	}
	return offers, nil
}

// ListExpiredReservationIDs returns reservations whose hold lapsed before now, oldest deadline first.
func (r *OfferRepository) ListExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT id FROM offers WHERE status = $1 AND deadline_at < $2 ORDER BY deadline_at ASC LIMIT $3`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.OfferStatusReserved, now, limit); err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return ids, nil
}

// WithinTx runs fn in a ledger transaction with bounded retry.
func (r *OfferRepository) WithinTx(ctx context.Context, fn func(OfferTx) error) error {
	return r.runner.Run(ctx, func(tx *sqlx.Tx) error {
		return fn(&offerTx{tx: tx})
	})
}

type offerTx struct {
	tx *sqlx.Tx
}

func (t *offerTx) LockByID(ctx context.Context, id string) (*models.Offer, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	var offer models.Offer
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &offer, query, id); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (t *offerTx) Insert(ctx context.Context, offer *models.Offer) error {
	prepareInsert(offer)
	if _, err := t.tx.NamedExecContext(ctx, insertOfferQuery, offer); err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func (t *offerTx) UpdateQuantity(ctx context.Context, id string, quantity int, at time.Time) error {
	const query = `UPDATE offers SET quantity = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := t.tx.ExecContext(ctx, query, quantity, at, id, models.OfferStatusAvailable)
	if err != nil {
		return fmt.Errorf("update offer quantity: %w", err)
	}
	return expectOneRow(res)
}

func (t *offerTx) SaveState(ctx context.Context, offer *models.Offer, from models.OfferStatus) error {
	const query = `UPDATE offers SET status = $1, claimant_id = $2, claimant_name = $3, claimant_contact = $4,
       reserved_at = $5, deadline_at = $6, received_at = $7, received_by = $8, quality_check = $9,
       reject_reason = $10, distributed_at = $11, distributed_by = $12, pickup_missed = $13, audit_note = $14,
       released_at = $15, updated_at = $16
 WHERE id = $17 AND status = $18`
	res, err := t.tx.ExecContext(ctx, query,
		offer.Status, offer.ClaimantID, offer.ClaimantName, offer.ClaimantContact,
		offer.ReservedAt, offer.DeadlineAt, offer.ReceivedAt, offer.ReceivedBy, offer.QualityCheck,
		offer.RejectReason, offer.DistributedAt, offer.DistributedBy, offer.PickupMissed, offer.AuditNote,
		offer.ReleasedAt, offer.UpdatedAt,
		offer.ID, from,
	)
	if err != nil {
		return fmt.Errorf("save offer state: %w", err)
	}
	return expectOneRow(res)
}

func (t *offerTx) InsertAudit(ctx context.Context, log *models.AuditLog) error {
	prepareAudit(log)
	if _, err := t.tx.NamedExecContext(ctx, insertAuditQuery, log); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
