package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

// OverrideService is the administrator's escape valve for stuck holds.
type OverrideService struct {
	offers    offerLedger
	validator *validator.Validate
	logger    *zap.Logger
	ledgerDeps
}

// NewOverrideService constructs an OverrideService.
func NewOverrideService(offers offerLedger, validate *validator.Validate, logger *zap.Logger, opts ...LedgerOption) *OverrideService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{offers: offers, validator: validate, logger: logger, ledgerDeps: newLedgerDeps(opts)}
}

// ForceRelease finalizes a reservation as distributed to whoever the admin
// names in note. The reserved quantity never returns to stock.
func (s *OverrideService) ForceRelease(ctx context.Context, reservationID string, req dto.ForceReleaseRequest, actor *models.JWTClaims) (*models.Offer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid force release payload")
	}
	note := strings.TrimSpace(req.Note)

	var (
		result   *models.Offer
		claimant string
	)
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		reservation, err := lockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if reservation.ClaimantID != nil {
			claimant = *reservation.ClaimantID
		}
		fields := TransitionFields{ActorID: actor.UserID, Note: note, PickupMissed: true}
		if err := applyTransition(ctx, tx, reservation, models.OfferStatusDistributed, models.AuditActionForceRelease, fields, s.now()); err != nil {
			return err
		}
		result = reservation
		return nil
	})
	if err != nil {
		return nil, ledgerError(err, "failed to force release reservation")
	}
	s.recordTransition(models.OfferStatusReserved, models.OfferStatusDistributed)
	s.logger.Info("reservation force released",
		zap.String("reservation_id", result.ID),
		zap.String("admin_id", actor.UserID),
		zap.String("claimant_id", claimant),
	)
	s.emit(models.EventReservationReleased, result, actor.UserID, note)
	return result, nil
}
