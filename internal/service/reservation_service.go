package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

// Claim outcomes reported to metrics.
const (
	ClaimGranted           = "granted"
	ClaimInsufficientStock = "insufficient_stock"
	ClaimInvalid           = "invalid"
	ClaimConflict          = "conflict"
	ClaimError             = "error"
)

// DefaultHoldDuration bounds a reservation when no hold is configured.
const DefaultHoldDuration = 3 * time.Hour

// ReservationConfig tunes claim behaviour.
type ReservationConfig struct {
	HoldDuration time.Duration
}

// ReservationService splits available stock into time-bounded holds.
type ReservationService struct {
	offers    offerStore
	validator *validator.Validate
	logger    *zap.Logger
	hold      time.Duration
	ledgerDeps
}

// NewReservationService constructs a ReservationService.
func NewReservationService(offers offerStore, validate *validator.Validate, logger *zap.Logger, cfg ReservationConfig, opts ...LedgerOption) *ReservationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = DefaultHoldDuration
	}
	return &ReservationService{
		offers:     offers,
		validator:  validate,
		logger:     logger,
		hold:       cfg.HoldDuration,
		ledgerDeps: newLedgerDeps(opts),
	}
}

// Claim reserves qty units of an available offer for the caller. The parent
// is re-read under a row lock and reduced by exactly qty in the same
// transaction that inserts the reservation.
func (s *ReservationService) Claim(ctx context.Context, offerID string, req dto.ClaimRequest, actor *models.JWTClaims) (*models.ClaimReceipt, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid claim payload")
	}
	if req.Quantity <= 0 {
		s.recordClaim(ClaimInvalid)
		return nil, appErrors.ErrInvalidQuantity
	}
	claimant := models.Claimant{
		ID:      actor.UserID,
		Name:    firstNonEmpty(strings.TrimSpace(req.ClaimantName), actor.FullName),
		Contact: firstNonEmpty(strings.TrimSpace(req.ClaimantContact), actor.Phone, actor.Email),
	}

	var (
		receipt *models.ClaimReceipt
		child   *models.Offer
	)
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		parent, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if err := requireStatus(parent, models.OfferStatusAvailable); err != nil {
			return err
		}
		if parent.Quantity == 0 || req.Quantity > parent.Quantity {
			return appErrors.Clone(appErrors.ErrInsufficientStock,
				fmt.Sprintf("requested %d, only %d available", req.Quantity, parent.Quantity))
		}

		before := parent.Quantity
		now := s.now()
		reservation := parent.Split(uuid.NewString(), req.Quantity, claimant, now, s.hold)
		if err := tx.UpdateQuantity(ctx, parent.ID, parent.Quantity, now); err != nil {
			return ledgerWriteError(err, "failed to update offer quantity")
		}
		if err := tx.Insert(ctx, reservation); err != nil {
			return err
		}
		oldValues, _ := json.Marshal(map[string]interface{}{"quantity": before})
		newValues, _ := json.Marshal(map[string]interface{}{
			"quantity":      parent.Quantity,
			"reservationId": reservation.ID,
			"reserved":      reservation.Quantity,
			"claimantId":    claimant.ID,
		})
		if err := tx.InsertAudit(ctx, &models.AuditLog{
			UserID:     optionalString(claimant.ID),
			Action:     models.AuditActionOfferClaim,
			Resource:   models.AuditResourceOffer,
			ResourceID: &parent.ID,
			OldValues:  oldValues,
			NewValues:  newValues,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		receipt = &models.ClaimReceipt{
			ReservationID: reservation.ID,
			ParentID:      parent.ID,
			Quantity:      reservation.Quantity,
			Remaining:     parent.Quantity,
			Deadline:      *reservation.DeadlineAt,
		}
		child = reservation
		return nil
	})
	if err != nil {
		s.recordClaim(claimOutcome(err))
		if errors.Is(err, appErrors.ErrTransactionConflict) {
			s.logger.Warn("claim retry budget exhausted", zap.String("offer_id", offerID), zap.Error(err))
		}
		return nil, ledgerError(err, "failed to claim offer")
	}

	s.recordClaim(ClaimGranted)
	s.logger.Info("offer claimed",
		zap.String("offer_id", receipt.ParentID),
		zap.String("reservation_id", receipt.ReservationID),
		zap.Int("quantity", receipt.Quantity),
		zap.Int("remaining", receipt.Remaining),
	)
	s.emit(models.EventOfferClaimed, child, claimant.ID, "")
	return receipt, nil
}

// ConfirmHandover records that the claimant collected a reservation.
func (s *ReservationService) ConfirmHandover(ctx context.Context, reservationID string, actor *models.JWTClaims) (*models.Offer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var result *models.Offer
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		reservation, err := lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		fields := TransitionFields{ActorID: actor.UserID}
		if err := applyTransition(ctx, tx, reservation, models.OfferStatusDistributed, models.AuditActionHandover, fields, s.now()); err != nil {
			return err
		}
		result = reservation
		return nil
	})
	if err != nil {
		return nil, ledgerError(err, "failed to confirm handover")
	}
	s.recordTransition(models.OfferStatusReserved, models.OfferStatusDistributed)
	s.emit(models.EventReservationHandedOver, result, actor.UserID, "")
	return result, nil
}

// ListReservations returns the caller's holds. Admins may see every holder's.
func (s *ReservationService) ListReservations(ctx context.Context, query dto.ReservationQuery, actor *models.JWTClaims) ([]models.Offer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.OfferFilter{
		ReservationsOnly: true,
		ParentID:         strings.TrimSpace(query.ParentID),
		ReportID:         strings.TrimSpace(query.ReportID),
		Limit:            query.Limit,
		Offset:           query.Offset,
	}
	if query.Status != "" {
		status, ok := models.ParseOfferStatus(query.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown reservation status")
		}
		filter.Statuses = []models.OfferStatus{status}
	}
	if !actor.IsAdmin() {
		filter.ClaimantID = actor.UserID
	}
	offers, err := s.offers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reservations")
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	return offers, nil
}

func (s *ReservationService) recordClaim(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordClaim(outcome)
	}
}

// lockReservation locks a record that must have been split off by a claim.
func lockReservation(ctx context.Context, tx repository.OfferTx, id string) (*models.Offer, error) {
	offer, err := lockOffer(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if !offer.IsReservation() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "offer is not a reservation")
	}
	if err := requireStatus(offer, models.OfferStatusReserved); err != nil {
		return nil, err
	}
	return offer, nil
}

func claimOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrInsufficientStock):
		return ClaimInsufficientStock
	case errors.Is(err, appErrors.ErrTransactionConflict):
		return ClaimConflict
	case errors.Is(err, appErrors.ErrInvalidTransition), errors.Is(err, appErrors.ErrNotFound), errors.Is(err, appErrors.ErrInvalidQuantity):
		return ClaimInvalid
	default:
		return ClaimError
	}
}
