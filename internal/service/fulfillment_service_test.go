package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
)

func boolPtr(v bool) *bool { return &v }

func TestFulfillmentServiceInspectPassCreditsOnce(t *testing.T) {
	ledger := newMemLedger(stagedOffer("offer-1", 10))
	rewards := newMemRewards()
	events := &recordingEmitter{}
	svc := NewFulfillmentService(ledger, rewards, nil, nil, FulfillmentConfig{}, WithEvents(events), fixedClock(ledgerEpoch))
	admin := claimsFor("inspector-1", models.RoleAdmin)
	ctx := context.Background()

	result, err := svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, admin)
	require.NoError(t, err)
	assert.True(t, result.Credited)
	assert.False(t, result.RewardPending)
	assert.Equal(t, models.OfferStatusAvailable, result.Offer.Status)
	require.NotNil(t, result.Offer.QualityCheck)
	assert.Equal(t, models.QualityCheckPassed, *result.Offer.QualityCheck)
	require.NotNil(t, result.Offer.ReceivedBy)
	assert.Equal(t, "inspector-1", *result.Offer.ReceivedBy)
	assert.Equal(t, ledgerEpoch, *result.Offer.ReceivedAt)

	_, err = svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidTransition))

	assert.Equal(t, DefaultDonationPoints, rewards.balances["donor-1"])
	assert.Len(t, rewards.credits, 1)
	assert.Equal(t, []models.LedgerEventType{models.EventOfferInspected}, events.types())
}

func TestFulfillmentServiceScenarioB(t *testing.T) {
	reports := &reportRepoStub{report: &models.Report{ID: "report-1", Severity: models.SeverityAlert, Needs: []string{"Beras"}}}
	ledger := newMemLedger(stagedOffer("offer-1", 10))
	rewards := newMemRewards()
	svc := NewFulfillmentService(ledger, rewards, nil, nil, FulfillmentConfig{}, fixedClock(ledgerEpoch))
	needs := NewNeedService(reports, ledger, nil, nil, nil)
	ctx := context.Background()

	before, err := needs.GetNeedsProgress(ctx, "report-1")
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.Equal(t, 10, before[0].Collected)

	result, err := svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(false), Reason: "damaged"}, claimsFor("inspector-1", models.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, models.OfferStatusRejected, result.Offer.Status)
	require.NotNil(t, result.Offer.RejectReason)
	assert.Equal(t, "damaged", *result.Offer.RejectReason)
	assert.Equal(t, models.QualityCheckFailed, *result.Offer.QualityCheck)
	assert.False(t, result.Credited)
	assert.Empty(t, rewards.credits)

	after, err := needs.GetNeedsProgress(ctx, "report-1")
	require.NoError(t, err)
	assert.Zero(t, after[0].Collected)

	_, err = svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, claimsFor("inspector-1", models.RoleAdmin))
	assert.True(t, errors.Is(err, appErrors.ErrAlreadyTerminal))
}

func TestFulfillmentServiceDefersFailedCredit(t *testing.T) {
	ledger := newMemLedger(stagedOffer("offer-1", 10))
	rewards := newMemRewards()
	rewards.failures = 1
	queue := &recordingQueue{}
	svc := NewFulfillmentService(ledger, rewards, nil, nil, FulfillmentConfig{DonationPoints: 75}, WithCreditRetryQueue(queue))
	ctx := context.Background()

	result, err := svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, claimsFor("inspector-1", models.RoleAdmin))
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.True(t, result.RewardPending)
	assert.Equal(t, models.OfferStatusAvailable, ledger.get(t, "offer-1").Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, CreditJobType, queue.jobs[0].Type)

	require.NoError(t, svc.HandleCreditJob(ctx, queue.jobs[0]))
	require.NoError(t, svc.HandleCreditJob(ctx, queue.jobs[0]))
	assert.Equal(t, 75, rewards.balances["donor-1"])
}

func TestFulfillmentServiceReportsUnqueuedCredit(t *testing.T) {
	ledger := newMemLedger(stagedOffer("offer-1", 10))
	rewards := newMemRewards()
	rewards.failures = 1
	svc := NewFulfillmentService(ledger, rewards, nil, nil, FulfillmentConfig{}, WithCreditRetryQueue(&recordingQueue{err: jobs.ErrQueueFull}))

	result, err := svc.Inspect(context.Background(), "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, claimsFor("inspector-1", models.RoleAdmin))
	require.NoError(t, err)
	assert.False(t, result.Credited)
	assert.False(t, result.RewardPending)
}

func TestFulfillmentServiceInspectValidation(t *testing.T) {
	svc := NewFulfillmentService(newMemLedger(), newMemRewards(), nil, nil, FulfillmentConfig{})

	_, err := svc.Inspect(context.Background(), "offer-1", dto.InspectRequest{}, claimsFor("inspector-1", models.RoleAdmin))
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.Inspect(context.Background(), "missing", dto.InspectRequest{Passed: boolPtr(true)}, claimsFor("inspector-1", models.RoleAdmin))
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFulfillmentServiceHandleCreditJobRejectsPayload(t *testing.T) {
	svc := NewFulfillmentService(newMemLedger(), newMemRewards(), nil, nil, FulfillmentConfig{})
	assert.Error(t, svc.HandleCreditJob(context.Background(), jobs.Job{Payload: "offer-1"}))
}

func TestFulfillmentServiceReconcileCreditsAfterLostRetry(t *testing.T) {
	ledger := newMemLedger(stagedOffer("offer-1", 10))
	rewards := newMemRewards()
	rewards.failures = 1
	queue := &recordingQueue{}
	svc := NewFulfillmentService(ledger, rewards, nil, nil, FulfillmentConfig{DonationPoints: 40}, WithCreditRetryQueue(queue))
	ctx := context.Background()

	result, err := svc.Inspect(ctx, "offer-1", dto.InspectRequest{Passed: boolPtr(true)}, claimsFor("inspector-1", models.RoleAdmin))
	require.NoError(t, err)
	require.True(t, result.RewardPending)

	// The queued job is never run, as after a restart.
	rewards.inspected = []models.RewardCredit{{OfferID: "offer-1", DonorID: "donor-1"}}
	applied, err := svc.ReconcileCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 40, rewards.balances["donor-1"])

	applied, err = svc.ReconcileCredits(ctx)
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, 40, rewards.balances["donor-1"])
}
