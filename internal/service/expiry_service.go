package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
)

type expiredReservationLister interface {
	ListExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type expiryStore interface {
	offerLedger
	expiredReservationLister
}

// ExpiryConfig tunes the sweeper.
type ExpiryConfig struct {
	Interval  time.Duration
	BatchSize int
}

// ExpiryService returns lapsed holds to stock. It complements the manual
// force release; both stay available.
type ExpiryService struct {
	offers expiryStore
	logger *zap.Logger
	cfg    ExpiryConfig
	ledgerDeps
}

// NewExpiryService constructs an ExpiryService.
func NewExpiryService(offers expiryStore, logger *zap.Logger, cfg ExpiryConfig, opts ...LedgerOption) *ExpiryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ExpiryService{offers: offers, logger: logger, cfg: cfg, ledgerDeps: newLedgerDeps(opts)}
}

// SweepExpired moves every reservation whose deadline passed back to
// available, keeping its quantity on the record. Each reservation is released
// in its own transaction; one failure does not stop the pass.
func (s *ExpiryService) SweepExpired(ctx context.Context) (*dto.SweepResult, error) {
	now := s.now()
	ids, err := s.offers.ListExpiredReservationIDs(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, ledgerError(err, "failed to list expired reservations")
	}

	result := &dto.SweepResult{ReservationIDs: []string{}}
	for _, id := range ids {
		released, err := s.release(ctx, id, now)
		if err != nil {
			if ctx.Err() != nil {
				return result, ledgerError(ctx.Err(), "sweep interrupted")
			}
			s.logger.Warn("expiry sweep skipped reservation", zap.String("reservation_id", id), zap.Error(err))
			continue
		}
		if released == nil {
			continue
		}
		result.Released++
		result.ReservationIDs = append(result.ReservationIDs, id)
		s.recordTransition(models.OfferStatusReserved, models.OfferStatusAvailable)
		s.emit(models.EventReservationExpired, released, "", "")
	}
	if s.metrics != nil {
		s.metrics.RecordSweep(result.Released)
	}
	if result.Released > 0 {
		s.logger.Info("expired reservations released", zap.Int("released", result.Released))
	}
	return result, nil
}

// release re-checks the hold under the row lock. A reservation that was
// handed over or released since the listing is left alone.
func (s *ExpiryService) release(ctx context.Context, id string, now time.Time) (*models.Offer, error) {
	var released *models.Offer
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		released = nil
		offer, err := lockOffer(ctx, tx, id)
		if err != nil {
			return err
		}
		if !offer.IsReservation() || !offer.Expired(now) {
			return nil
		}
		if err := applyTransition(ctx, tx, offer, models.OfferStatusAvailable, models.AuditActionHoldExpired, TransitionFields{}, now); err != nil {
			return err
		}
		released = offer
		return nil
	})
	return released, err
}

// StartSweeper runs SweepExpired every interval until ctx is cancelled.
func (s *ExpiryService) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	go func() {
		defer ticker.Stop()
		s.logger.Info("expiry sweeper started", zap.Duration("interval", s.cfg.Interval), zap.Int("batch_size", s.cfg.BatchSize))
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("expiry sweeper stopped")
				return
			case <-ticker.C:
				if _, err := s.SweepExpired(ctx); err != nil {
					s.logger.Error("expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
