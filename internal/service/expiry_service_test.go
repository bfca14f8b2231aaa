package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/models"
)

func TestExpiryServiceSweepReleasesLapsedHolds(t *testing.T) {
	ledger := newMemLedger(
		availableOffer("offer-1", 10),
		reservationOf("res-old", "offer-1", "x", 4, ledgerEpoch.Add(-time.Minute)),
		reservationOf("res-new", "offer-1", "y", 6, ledgerEpoch.Add(time.Hour)),
	)
	events := &recordingEmitter{}
	metrics := NewMetricsService()
	svc := NewExpiryService(ledger, nil, ExpiryConfig{}, WithEvents(events), WithMetrics(metrics), fixedClock(ledgerEpoch))

	result, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Released)
	assert.Equal(t, []string{"res-old"}, result.ReservationIDs)

	released := ledger.get(t, "res-old")
	assert.Equal(t, models.OfferStatusAvailable, released.Status)
	assert.Equal(t, 4, released.Quantity)
	assert.Nil(t, released.ClaimantID)
	assert.Nil(t, released.DeadlineAt)
	require.NotNil(t, released.ReleasedAt)
	assert.Equal(t, ledgerEpoch, *released.ReleasedAt)

	assert.Equal(t, models.OfferStatusReserved, ledger.get(t, "res-new").Status)
	assert.Equal(t, 20, ledger.lineageTotal("offer-1"))
	assert.Equal(t, []string{models.AuditActionHoldExpired}, ledger.auditActions())
	assert.Equal(t, []models.LedgerEventType{models.EventReservationExpired}, events.types())
	assert.Equal(t, 1.0, counterValue(t, metrics.sweepReleased))

	again, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Released)
	assert.Empty(t, again.ReservationIDs)
}

func TestExpiryServiceStartSweeperStopsWithContext(t *testing.T) {
	ledger := newMemLedger(
		availableOffer("offer-1", 10),
		reservationOf("res-old", "offer-1", "x", 4, time.Now().UTC().Add(-time.Minute)),
	)
	svc := NewExpiryService(ledger, nil, ExpiryConfig{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.StartSweeper(ctx)
	require.Eventually(t, func() bool {
		return ledger.get(t, "res-old").Status == models.OfferStatusAvailable
	}, time.Second, 10*time.Millisecond)
}
