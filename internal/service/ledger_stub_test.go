package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	"github.com/noah-isme/relief-ledger-api/pkg/jobs"
)

// memLedger serializes transactions behind one mutex and discards every
// write of a transaction whose callback fails.
type memLedger struct {
	mu     sync.Mutex
	offers map[string]models.Offer
	audits []models.AuditLog
	txErr  error
	txRuns int
}

func newMemLedger(seed ...models.Offer) *memLedger {
	m := &memLedger{offers: make(map[string]models.Offer)}
	for _, o := range seed {
		m.offers[o.ID] = o
	}
	return m
}

func (m *memLedger) WithinTx(ctx context.Context, fn func(repository.OfferTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txRuns++
	if m.txErr != nil {
		return m.txErr
	}
	staged := make(map[string]models.Offer, len(m.offers))
	for id, o := range m.offers {
		staged[id] = o
	}
	tx := &memTx{offers: staged}
	if err := fn(tx); err != nil {
		return err
	}
	m.offers = staged
	m.audits = append(m.audits, tx.audits...)
	return nil
}

func (m *memLedger) GetByID(ctx context.Context, id string) (*models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (m *memLedger) List(ctx context.Context, f models.OfferFilter) ([]models.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Offer
	for _, o := range m.offers {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, o.Status) {
			continue
		}
		if f.ReportID != "" && (o.ReportID == nil || *o.ReportID != f.ReportID) {
			continue
		}
		if f.ItemName != "" && models.NormalizeItemName(o.ItemName) != models.NormalizeItemName(f.ItemName) {
			continue
		}
		if f.Category != "" && o.Category != f.Category {
			continue
		}
		if f.ClaimantID != "" && (o.ClaimantID == nil || *o.ClaimantID != f.ClaimantID) {
			continue
		}
		if f.ParentID != "" && (o.ParentID == nil || *o.ParentID != f.ParentID) {
			continue
		}
		if f.ReservationsOnly && !o.IsReservation() {
			continue
		}
		if f.ClaimableOnly && o.Quantity <= 0 {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if !f.Unpaged && f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memLedger) ListCountedByReport(ctx context.Context, reportID string) ([]models.Offer, error) {
	return m.List(ctx, models.OfferFilter{ReportID: reportID, Statuses: models.CountedStatuses()})
}

func (m *memLedger) ListExpiredReservationIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, o := range m.offers {
		if o.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memLedger) get(t *testing.T, id string) models.Offer {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[id]
	require.True(t, ok, "offer %s missing", id)
	return o
}

// lineage sums quantities by status over an offer and everything split from it.
func (m *memLedger) lineage(rootID string) map[models.OfferStatus]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[models.OfferStatus]int)
	for _, o := range m.offers {
		if o.ID == rootID || (o.ParentID != nil && *o.ParentID == rootID) {
			totals[o.Status] += o.Quantity
		}
	}
	return totals
}

func (m *memLedger) lineageTotal(rootID string) int {
	total := 0
	for _, qty := range m.lineage(rootID) {
		total += qty
	}
	return total
}

func (m *memLedger) auditActions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	actions := make([]string, len(m.audits))
	for i, a := range m.audits {
		actions[i] = a.Action
	}
	return actions
}

type memTx struct {
	offers map[string]models.Offer
	audits []models.AuditLog
}

func (t *memTx) LockByID(ctx context.Context, id string) (*models.Offer, error) {
	o, ok := t.offers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &o, nil
}

func (t *memTx) Insert(ctx context.Context, offer *models.Offer) error {
	t.offers[offer.ID] = *offer
	return nil
}

func (t *memTx) UpdateQuantity(ctx context.Context, id string, quantity int, at time.Time) error {
	o, ok := t.offers[id]
	if !ok || o.Status != models.OfferStatusAvailable {
		return sql.ErrNoRows
	}
	o.Quantity = quantity
	o.UpdatedAt = at
	t.offers[id] = o
	return nil
}

func (t *memTx) SaveState(ctx context.Context, offer *models.Offer, from models.OfferStatus) error {
	o, ok := t.offers[offer.ID]
	if !ok || o.Status != from {
		return sql.ErrNoRows
	}
	t.offers[offer.ID] = *offer
	return nil
}

func (t *memTx) InsertAudit(ctx context.Context, log *models.AuditLog) error {
	t.audits = append(t.audits, *log)
	return nil
}

func containsStatus(list []models.OfferStatus, s models.OfferStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memRewards struct {
	mu       sync.Mutex
	credits  map[string]int
	balances map[string]int
	failures int
	// inspected lists offers that passed inspection, for ListUncredited.
	inspected []models.RewardCredit
}

func newMemRewards() *memRewards {
	return &memRewards{credits: make(map[string]int), balances: make(map[string]int)}
}

func (r *memRewards) CreditOnce(ctx context.Context, offerID, donorID string, amount int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return false, sql.ErrConnDone
	}
	if _, done := r.credits[offerID]; done {
		return false, nil
	}
	r.credits[offerID] = amount
	r.balances[donorID] += amount
	return true, nil
}

func (r *memRewards) ListUncredited(ctx context.Context, limit int) ([]models.RewardCredit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.RewardCredit
	for _, c := range r.inspected {
		if _, done := r.credits[c.OfferID]; !done {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRewards) GetBalance(ctx context.Context, donorID string) (*models.DonorRewards, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &models.DonorRewards{DonorID: donorID, Points: r.balances[donorID]}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []models.LedgerEvent
}

func (e *recordingEmitter) Emit(ev models.LedgerEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) types() []models.LedgerEventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.LedgerEventType, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.Type
	}
	return out
}

type recordingQueue struct {
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

var ledgerEpoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func fixedClock(at time.Time) LedgerOption {
	return WithClock(func() time.Time { return at })
}

func availableOffer(id string, qty int) models.Offer {
	report := "report-1"
	return models.Offer{
		ID:        id,
		DonorID:   "donor-1",
		DonorName: "Budi",
		ReportID:  &report,
		ItemName:  "Beras",
		Quantity:  qty,
		Unit:      "kg",
		Status:    models.OfferStatusAvailable,
		CreatedAt: ledgerEpoch,
		UpdatedAt: ledgerEpoch,
	}
}

func stagedOffer(id string, qty int) models.Offer {
	o := availableOffer(id, qty)
	o.Status = models.OfferStatusStaged
	return o
}

func reservationOf(id, parentID, claimantID string, qty int, deadline time.Time) models.Offer {
	o := availableOffer(id, qty)
	o.ParentID = &parentID
	o.Status = models.OfferStatusReserved
	o.ClaimantID = &claimantID
	reservedAt := deadline.Add(-3 * time.Hour)
	o.ReservedAt = &reservedAt
	o.DeadlineAt = &deadline
	return o
}

func claimsFor(id string, role models.UserRole) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: role, FullName: strings.ToUpper(id), Email: id + "@relief.test"}
}
