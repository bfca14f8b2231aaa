package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

type auditReaderStub struct {
	logs []models.AuditLog
}

func (a auditReaderStub) ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error) {
	return a.logs, nil
}

func strRef(v string) *string { return &v }

func TestOfferServiceCreate(t *testing.T) {
	ledger := newMemLedger()
	events := &recordingEmitter{}
	svc := NewOfferService(ledger, nil, nil, nil, WithEvents(events), fixedClock(ledgerEpoch))
	donor := claimsFor("donor-7", models.RoleDonor)
	ctx := context.Background()

	pledge, err := svc.Create(ctx, dto.CreateOfferRequest{ReportID: strRef(" report-1 "), ItemName: " Beras ", Quantity: 12, Unit: "kg"}, donor)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusStaged, pledge.Status)
	assert.Equal(t, "Beras", pledge.ItemName)
	assert.Equal(t, "donor-7", pledge.DonorID)
	require.NotNil(t, pledge.ReportID)
	assert.Equal(t, "report-1", *pledge.ReportID)

	listing, err := svc.Create(ctx, dto.CreateOfferRequest{ItemName: "Tenda", Quantity: 3, Listing: true, DeliveryMethod: "pickup"}, donor)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAvailable, listing.Status)
	assert.Nil(t, listing.ReportID)
	assert.Equal(t, models.DeliveryPickup, listing.DeliveryMethod)

	assert.Equal(t, []string{models.AuditActionOfferCreate, models.AuditActionOfferCreate}, ledger.auditActions())
	assert.Equal(t, []models.LedgerEventType{models.EventOfferCreated, models.EventOfferCreated}, events.types())
}

func TestOfferServiceCreateUnknownReport(t *testing.T) {
	ledger := newMemLedger()
	ledger.txErr = fmt.Errorf("insert offer: %w", &pq.Error{Code: "23503", Constraint: "offers_report_id_fkey"})
	events := &recordingEmitter{}
	svc := NewOfferService(ledger, nil, nil, nil, WithEvents(events))

	_, err := svc.Create(context.Background(), dto.CreateOfferRequest{ReportID: strRef("report-404"), ItemName: "Beras", Quantity: 2}, claimsFor("donor-7", models.RoleDonor))
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.False(t, errors.Is(err, appErrors.ErrInternal))
	assert.Empty(t, events.types())
}

func TestOfferServiceCreateValidation(t *testing.T) {
	svc := NewOfferService(newMemLedger(), nil, nil, nil)
	donor := claimsFor("donor-7", models.RoleDonor)
	ctx := context.Background()

	_, err := svc.Create(ctx, dto.CreateOfferRequest{ItemName: "Beras", Quantity: 0}, donor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidQuantity))

	_, err = svc.Create(ctx, dto.CreateOfferRequest{ItemName: "Beras", Quantity: -1}, donor)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidQuantity))

	_, err = svc.Create(ctx, dto.CreateOfferRequest{Quantity: 2}, donor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateOfferRequest{ItemName: "Beras", Quantity: 2, DeliveryMethod: "drone"}, donor)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Create(ctx, dto.CreateOfferRequest{ItemName: "Beras", Quantity: 2}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestOfferServiceReads(t *testing.T) {
	empty := availableOffer("offer-empty", 0)
	other := availableOffer("offer-2", 4)
	other.ItemName = "Selimut"
	svc := NewOfferService(newMemLedger(availableOffer("offer-1", 5), empty, other, stagedOffer("offer-3", 2)), nil, nil, nil)
	ctx := context.Background()

	offer, err := svc.Get(ctx, "offer-1")
	require.NoError(t, err)
	assert.Equal(t, 5, offer.Quantity)

	_, err = svc.Get(ctx, "nope")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	available, err := svc.ListAvailable(ctx, dto.OfferQuery{})
	require.NoError(t, err)
	assert.Len(t, available, 2)

	staged, err := svc.ListByStatus(ctx, models.OfferStatusStaged, 0, 0)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "offer-3", staged[0].ID)

	_, err = svc.ListByStatus(ctx, models.OfferStatus("lost"), 0, 0)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	byTarget, err := svc.ListByTarget(ctx, "report-1", "  selimut ")
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, "offer-2", byTarget[0].ID)
}

func TestOfferServiceTransitionStatusConsultsTable(t *testing.T) {
	done := availableOffer("offer-done", 3)
	done.Status = models.OfferStatusRejected
	ledger := newMemLedger(stagedOffer("offer-1", 5), availableOffer("offer-2", 5), done)
	svc := NewOfferService(ledger, nil, nil, nil)
	ctx := context.Background()

	updated, err := svc.transitionStatus(ctx, "offer-1", models.OfferStatusAvailable, "", TransitionFields{ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusAvailable, updated.Status)

	_, err = svc.transitionStatus(ctx, "offer-2", models.OfferStatusReserved, "", TransitionFields{})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))
	assert.False(t, errors.Is(err, appErrors.ErrAlreadyTerminal))

	_, err = svc.transitionStatus(ctx, "offer-2", models.OfferStatusStaged, "", TransitionFields{})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = svc.transitionStatus(ctx, "offer-done", models.OfferStatusAvailable, "", TransitionFields{})
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyTerminal))
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = svc.transitionStatus(ctx, "missing", models.OfferStatusAvailable, "", TransitionFields{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	// offer-1 is available now; the from guard refuses it.
	_, err = svc.transitionStatus(ctx, "offer-1", models.OfferStatusRejected, models.OfferStatusStaged, TransitionFields{})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	assert.Equal(t, models.OfferStatusAvailable, ledger.get(t, "offer-2").Status)
	assert.Equal(t, []string{models.AuditActionOfferTransition}, ledger.auditActions())
}

func TestOfferServiceListByTargetReturnsEveryOffer(t *testing.T) {
	seed := make([]models.Offer, 0, 250)
	for i := 0; i < 250; i++ {
		seed = append(seed, stagedOffer(fmt.Sprintf("offer-%03d", i), 1))
	}
	svc := NewOfferService(newMemLedger(seed...), nil, nil, nil)

	offers, err := svc.ListByTarget(context.Background(), "report-1", "beras")
	require.NoError(t, err)
	assert.Len(t, offers, 250)
}

func TestOfferServiceRejectStock(t *testing.T) {
	ledger := newMemLedger(availableOffer("offer-1", 5), stagedOffer("offer-2", 5))
	events := &recordingEmitter{}
	svc := NewOfferService(ledger, nil, nil, nil, WithEvents(events))
	admin := claimsFor("admin-1", models.RoleAdmin)
	ctx := context.Background()

	rejected, err := svc.RejectStock(ctx, "offer-1", dto.RejectStockRequest{Reason: "flooded warehouse"}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusRejected, rejected.Status)
	assert.Equal(t, "flooded warehouse", *rejected.RejectReason)
	assert.Nil(t, rejected.QualityCheck)

	_, err = svc.RejectStock(ctx, "offer-2", dto.RejectStockRequest{Reason: "spoiled"}, admin)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	_, err = svc.RejectStock(ctx, "offer-1", dto.RejectStockRequest{}, admin)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	assert.Equal(t, []models.LedgerEventType{models.EventOfferRejected}, events.types())
}

func TestOfferServiceAuditTrail(t *testing.T) {
	logs := []models.AuditLog{{ID: "a1", Action: models.AuditActionOfferCreate}}
	svc := NewOfferService(newMemLedger(availableOffer("offer-1", 5)), auditReaderStub{logs: logs}, nil, nil)

	trail, err := svc.AuditTrail(context.Background(), "offer-1")
	require.NoError(t, err)
	assert.Equal(t, logs, trail)

	_, err = svc.AuditTrail(context.Background(), "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
