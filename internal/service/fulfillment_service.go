package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
)

// Credit outcomes reported to metrics.
const (
	CreditApplied   = "applied"
	CreditDuplicate = "duplicate"
	CreditDeferred  = "deferred"
	CreditFailed    = "failed"
)

// CreditJobType identifies reward credit retries on the job queue.
const CreditJobType = "reward_credit"

// DefaultDonationPoints is credited per accepted offer when unset.
const DefaultDonationPoints = 50

type rewardLedger interface {
	CreditOnce(ctx context.Context, offerID, donorID string, amount int) (bool, error)
	ListUncredited(ctx context.Context, limit int) ([]models.RewardCredit, error)
}

// reconcileBatch bounds one pass of ReconcileCredits.
const reconcileBatch = 100

// CreditPayload is the job payload of a deferred reward credit.
type CreditPayload struct {
	OfferID string
	DonorID string
	Amount  int
}

// FulfillmentConfig tunes inspection behaviour.
type FulfillmentConfig struct {
	DonationPoints int
}

// FulfillmentService promotes delivered offers into stock and credits donors.
type FulfillmentService struct {
	offers    offerStore
	rewards   rewardLedger
	validator *validator.Validate
	logger    *zap.Logger
	points    int
	ledgerDeps
}

// NewFulfillmentService constructs a FulfillmentService.
func NewFulfillmentService(offers offerStore, rewards rewardLedger, validate *validator.Validate, logger *zap.Logger, cfg FulfillmentConfig, opts ...LedgerOption) *FulfillmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DonationPoints <= 0 {
		cfg.DonationPoints = DefaultDonationPoints
	}
	return &FulfillmentService{
		offers:     offers,
		rewards:    rewards,
		validator:  validate,
		logger:     logger,
		points:     cfg.DonationPoints,
		ledgerDeps: newLedgerDeps(opts),
	}
}

// Inspect records the quality check of a staged offer. A pass moves it to
// available and credits the donor once; a fail rejects it.
func (s *FulfillmentService) Inspect(ctx context.Context, offerID string, req dto.InspectRequest, actor *models.JWTClaims) (*dto.InspectResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid inspection payload")
	}
	passed := *req.Passed
	to := models.OfferStatusRejected
	if passed {
		to = models.OfferStatusAvailable
	}

	var offer *models.Offer
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		locked, err := lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if err := requireStatus(locked, models.OfferStatusStaged); err != nil {
			return err
		}
		fields := TransitionFields{ActorID: actor.UserID, Reason: strings.TrimSpace(req.Reason)}
		if err := applyTransition(ctx, tx, locked, to, models.AuditActionOfferInspect, fields, s.now()); err != nil {
			return err
		}
		offer = locked
		return nil
	})
	if err != nil {
		return nil, ledgerError(err, "failed to inspect offer")
	}
	s.recordTransition(models.OfferStatusStaged, to)

	result := &dto.InspectResult{Offer: offer}
	if !passed {
		s.emit(models.EventOfferRejected, offer, actor.UserID, req.Reason)
		return result, nil
	}
	s.emit(models.EventOfferInspected, offer, actor.UserID, "")

	payload := CreditPayload{OfferID: offer.ID, DonorID: offer.DonorID, Amount: s.points}
	applied, err := s.rewards.CreditOnce(ctx, payload.OfferID, payload.DonorID, payload.Amount)
	if err != nil {
		s.logger.Warn("reward credit failed, deferring", zap.String("offer_id", offer.ID), zap.Error(err))
		result.RewardPending = s.deferCredit(payload)
		return result, nil
	}
	result.Credited = true
	s.recordCredit(creditOutcome(applied))
	return result, nil
}

// deferCredit queues a credit for retry and reports whether it was accepted.
func (s *FulfillmentService) deferCredit(payload CreditPayload) bool {
	if s.creditQueue == nil {
		s.recordCredit(CreditFailed)
		return false
	}
	job := jobs.Job{ID: payload.OfferID, Type: CreditJobType, Payload: payload, Enqueued: s.now()}
	if err := s.creditQueue.Enqueue(job); err != nil {
		s.logger.Error("reward credit could not be queued", zap.String("offer_id", payload.OfferID), zap.Error(err))
		s.recordCredit(CreditFailed)
		return false
	}
	s.recordCredit(CreditDeferred)
	return true
}

// HandleCreditJob replays a deferred credit. Replays are safe because the
// credit is keyed by offer id.
func (s *FulfillmentService) HandleCreditJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(CreditPayload)
	if !ok {
		return fmt.Errorf("unexpected credit payload %T", job.Payload)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	applied, err := s.rewards.CreditOnce(ctx, payload.OfferID, payload.DonorID, payload.Amount)
	if err != nil {
		return err
	}
	s.recordCredit(creditOutcome(applied))
	s.logger.Info("deferred reward credit settled",
		zap.String("offer_id", payload.OfferID),
		zap.Bool("applied", applied),
		zap.Int("attempt", job.Attempt),
	)
	return nil
}

// ReconcileCredits credits inspected offers whose deferred credit never
// landed, for example because the retry queue was drained by a restart. It
// returns how many credits it applied.
func (s *FulfillmentService) ReconcileCredits(ctx context.Context) (int, error) {
	pending, err := s.rewards.ListUncredited(ctx, reconcileBatch)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list uncredited offers")
	}
	applied := 0
	for _, credit := range pending {
		ok, err := s.rewards.CreditOnce(ctx, credit.OfferID, credit.DonorID, s.points)
		if err != nil {
			s.recordCredit(CreditFailed)
			s.logger.Warn("reward reconciliation failed", zap.String("offer_id", credit.OfferID), zap.Error(err))
			continue
		}
		s.recordCredit(creditOutcome(ok))
		if ok {
			applied++
		}
	}
	if applied > 0 {
		s.logger.Info("reward credits reconciled", zap.Int("applied", applied), zap.Int("pending", len(pending)))
	}
	return applied, nil
}

func (s *FulfillmentService) recordCredit(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordCredit(outcome)
	}
}

func creditOutcome(applied bool) string {
	if applied {
		return CreditApplied
	}
	return CreditDuplicate
}
