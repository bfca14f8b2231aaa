package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
)

// offerLedger is the transactional side of the offer store.
type offerLedger interface {
	WithinTx(ctx context.Context, fn func(repository.OfferTx) error) error
}

type offerReader interface {
	GetByID(ctx context.Context, id string) (*models.Offer, error)
	List(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error)
}

// EventEmitter receives ledger events after the mutation commits.
type EventEmitter interface {
	Emit(event models.LedgerEvent)
}

// LedgerMetrics is the instrumentation surface used by ledger services.
type LedgerMetrics interface {
	RecordClaim(outcome string)
	RecordTransition(from, to models.OfferStatus)
	RecordCredit(outcome string)
	RecordSweep(released int)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type ledgerDeps struct {
	events      EventEmitter
	metrics     LedgerMetrics
	creditQueue jobEnqueuer
	now         func() time.Time
}

// LedgerOption wires optional collaborators into ledger services.
type LedgerOption func(*ledgerDeps)

// WithEvents publishes ledger events through emitter.
func WithEvents(emitter EventEmitter) LedgerOption {
	return func(d *ledgerDeps) { d.events = emitter }
}

// WithMetrics records ledger outcomes.
func WithMetrics(m LedgerMetrics) LedgerOption {
	return func(d *ledgerDeps) { d.metrics = m }
}

// WithCreditRetryQueue defers failed reward credits to q.
func WithCreditRetryQueue(q jobEnqueuer) LedgerOption {
	return func(d *ledgerDeps) { d.creditQueue = q }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LedgerOption {
	return func(d *ledgerDeps) {
		if now != nil {
			d.now = now
		}
	}
}

func newLedgerDeps(opts []LedgerOption) ledgerDeps {
	d := ledgerDeps{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(&d)
		}
	}
	return d
}

func (d ledgerDeps) emit(t models.LedgerEventType, offer *models.Offer, actorID, note string) {
	if d.events == nil || offer == nil {
		return
	}
	ev := models.NewLedgerEvent(t, offer, actorID, offer.UpdatedAt)
	ev.Note = note
	d.events.Emit(ev)
}

func (d ledgerDeps) recordTransition(from, to models.OfferStatus) {
	if d.metrics != nil {
		d.metrics.RecordTransition(from, to)
	}
}

// TransitionFields carries the actor and free text stamped on a transition.
type TransitionFields struct {
	ActorID      string
	Reason       string
	Note         string
	PickupMissed bool
}

// checkTransition consults the transition table and refines refusals of
// terminal records.
func checkTransition(from, to models.OfferStatus) error {
	if from.Terminal() {
		return appErrors.Clone(appErrors.ErrAlreadyTerminal, fmt.Sprintf("offer already %s", from))
	}
	if !models.TransitionAllowed(from, to) {
		return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move offer from %s to %s", from, to))
	}
	return nil
}

// requireStatus refuses any offer that is not currently in want.
func requireStatus(offer *models.Offer, want models.OfferStatus) error {
	if offer.Status == want {
		return nil
	}
	if offer.Status.Terminal() {
		return appErrors.Clone(appErrors.ErrAlreadyTerminal, fmt.Sprintf("offer already %s", offer.Status))
	}
	return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("offer is %s, expected %s", offer.Status, want))
}

func stampTransition(o *models.Offer, from, to models.OfferStatus, f TransitionFields, now time.Time) {
	o.Status = to
	o.UpdatedAt = now
	actor := optionalString(f.ActorID)
	switch {
	case from == models.OfferStatusStaged && to == models.OfferStatusAvailable:
		passed := models.QualityCheckPassed
		o.ReceivedAt, o.ReceivedBy, o.QualityCheck = &now, actor, &passed
	case from == models.OfferStatusStaged && to == models.OfferStatusRejected:
		failed := models.QualityCheckFailed
		o.ReceivedAt, o.ReceivedBy, o.QualityCheck = &now, actor, &failed
		o.RejectReason = optionalString(f.Reason)
	case to == models.OfferStatusRejected:
		o.RejectReason = optionalString(f.Reason)
	case to == models.OfferStatusDistributed:
		o.DistributedAt, o.DistributedBy = &now, actor
		o.PickupMissed = f.PickupMissed
		o.DeadlineAt = nil
		if note := optionalString(f.Note); note != nil {
			o.AuditNote = note
		}
	case from == models.OfferStatusReserved && to == models.OfferStatusAvailable:
		o.ReleasedAt = &now
		o.ClaimantID, o.ClaimantName, o.ClaimantContact = nil, nil, nil
		o.ReservedAt, o.DeadlineAt = nil, nil
	}
}

// applyTransition validates and persists a status change of a locked offer
// together with its audit row. It is the only path that changes status.
func applyTransition(ctx context.Context, tx repository.OfferTx, offer *models.Offer, to models.OfferStatus, action string, f TransitionFields, now time.Time) error {
	from := offer.Status
	if err := checkTransition(from, to); err != nil {
		return err
	}
	before := snapshotOffer(offer)
	stampTransition(offer, from, to, f, now)
	if err := tx.SaveState(ctx, offer, from); err != nil {
		return ledgerWriteError(err, "failed to save offer state")
	}
	return tx.InsertAudit(ctx, &models.AuditLog{
		UserID:     optionalString(f.ActorID),
		Action:     action,
		Resource:   models.AuditResourceOffer,
		ResourceID: &offer.ID,
		OldValues:  before,
		NewValues:  snapshotOffer(offer),
		Note:       optionalString(firstNonEmpty(f.Note, f.Reason)),
		CreatedAt:  now,
	})
}

func lockOffer(ctx context.Context, tx repository.OfferTx, id string) (*models.Offer, error) {
	offer, err := tx.LockByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
		}
		return nil, err
	}
	return offer, nil
}

// ledgerWriteError maps a guarded write that matched no row. Under the row
// lock this only happens when the record changed underneath us.
func ledgerWriteError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.WrapAs(err, appErrors.ErrTransactionConflict, "")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

// ledgerError passes domain errors through and wraps the rest.
func ledgerError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "request cancelled")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, msg)
}

type offerSnapshot struct {
	Status          models.OfferStatus `json:"status"`
	Quantity        int                `json:"quantity"`
	ClaimantID      *string            `json:"claimantId,omitempty"`
	ClaimantName    *string            `json:"claimantName,omitempty"`
	ClaimantContact *string            `json:"claimantContact,omitempty"`
	DeadlineAt      *time.Time         `json:"deadlineAt,omitempty"`
	DistributedBy   *string            `json:"distributedBy,omitempty"`
	PickupMissed    bool               `json:"pickupMissed,omitempty"`
}

func snapshotOffer(o *models.Offer) []byte {
	raw, err := json.Marshal(offerSnapshot{
		Status:          o.Status,
		Quantity:        o.Quantity,
		ClaimantID:      o.ClaimantID,
		ClaimantName:    o.ClaimantName,
		ClaimantContact: o.ClaimantContact,
		DeadlineAt:      o.DeadlineAt,
		DistributedBy:   o.DistributedBy,
		PickupMissed:    o.PickupMissed,
	})
	if err != nil {
		return nil
	}
	return raw
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func actorID(actor *models.JWTClaims) string {
	if actor == nil {
		return ""
	}
	return actor.UserID
}
