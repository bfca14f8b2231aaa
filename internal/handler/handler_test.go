package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/middleware"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/service"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

func newContext(method, target, body string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope.Error.Code
}

var volunteer = &models.JWTClaims{UserID: "user-1", Role: models.RoleVolunteer}

type offerServiceMock struct {
	created   dto.CreateOfferRequest
	query     dto.OfferQuery
	offer     *models.Offer
	offers    []models.Offer
	err       error
	createHit bool
}

func (m *offerServiceMock) Create(ctx context.Context, req dto.CreateOfferRequest, actor *models.JWTClaims) (*models.Offer, error) {
	m.createHit = true
	m.created = req
	return m.offer, m.err
}

func (m *offerServiceMock) Get(ctx context.Context, id string) (*models.Offer, error) {
	return m.offer, m.err
}

func (m *offerServiceMock) ListAvailable(ctx context.Context, query dto.OfferQuery) ([]models.Offer, error) {
	m.query = query
	return m.offers, m.err
}

func TestOfferHandlerCreate(t *testing.T) {
	mockSvc := &offerServiceMock{offer: &models.Offer{ID: "offer-1", Status: models.OfferStatusStaged}}
	h := NewOfferHandler(mockSvc)

	c, w := newContext(http.MethodPost, "/offers", `{"itemName":"Beras","quantity":10,"unit":"kg"}`, volunteer)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Beras", mockSvc.created.ItemName)
	assert.Equal(t, 10, mockSvc.created.Quantity)
	assert.Contains(t, w.Body.String(), "offer-1")
}

func TestOfferHandlerCreateInvalidBody(t *testing.T) {
	mockSvc := &offerServiceMock{}
	h := NewOfferHandler(mockSvc)

	c, w := newContext(http.MethodPost, "/offers", `{"itemName":`, volunteer)
	h.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, mockSvc.createHit)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeError(t, w))
}

func TestOfferHandlerListBindsQuery(t *testing.T) {
	mockSvc := &offerServiceMock{offers: []models.Offer{{ID: "offer-1"}}}
	h := NewOfferHandler(mockSvc)

	c, w := newContext(http.MethodGet, "/offers?reportId=r-1&item=Beras&limit=5", "", volunteer)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r-1", mockSvc.query.ReportID)
	assert.Equal(t, "Beras", mockSvc.query.Item)
	assert.Equal(t, 5, mockSvc.query.Limit)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestOfferHandlerGetNotFound(t *testing.T) {
	h := NewOfferHandler(&offerServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "offer not found")})

	c, w := newContext(http.MethodGet, "/offers/missing", "", volunteer)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type reservationServiceMock struct {
	offerID string
	req     dto.ClaimRequest
	receipt *models.ClaimReceipt
	err     error
}

func (m *reservationServiceMock) Claim(ctx context.Context, offerID string, req dto.ClaimRequest, actor *models.JWTClaims) (*models.ClaimReceipt, error) {
	m.offerID = offerID
	m.req = req
	return m.receipt, m.err
}

func (m *reservationServiceMock) ListReservations(ctx context.Context, query dto.ReservationQuery, actor *models.JWTClaims) ([]models.Offer, error) {
	return nil, m.err
}

func TestReservationHandlerClaim(t *testing.T) {
	mockSvc := &reservationServiceMock{receipt: &models.ClaimReceipt{}}
	h := NewReservationHandler(mockSvc)

	c, w := newContext(http.MethodPost, "/offers/offer-1/claims", `{"quantity":3}`, volunteer)
	c.Params = gin.Params{{Key: "id", Value: "offer-1"}}
	h.Claim(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "offer-1", mockSvc.offerID)
	assert.Equal(t, 3, mockSvc.req.Quantity)
}

func TestReservationHandlerClaimMapsLedgerErrors(t *testing.T) {
	cases := map[*appErrors.Error]int{
		appErrors.ErrInsufficientStock:   http.StatusConflict,
		appErrors.ErrInvalidQuantity:     http.StatusUnprocessableEntity,
		appErrors.ErrInvalidTransition:   http.StatusConflict,
		appErrors.ErrTransactionConflict: http.StatusConflict,
	}
	for base, status := range cases {
		t.Run(base.Code, func(t *testing.T) {
			h := NewReservationHandler(&reservationServiceMock{err: appErrors.Clone(base, base.Message)})
			c, w := newContext(http.MethodPost, "/offers/offer-1/claims", `{"quantity":3}`, volunteer)
			h.Claim(c)
			assert.Equal(t, status, w.Code)
			assert.Equal(t, base.Code, decodeError(t, w))
		})
	}
}

func TestReservationHandlerListReturnsEmptyArray(t *testing.T) {
	h := NewReservationHandler(&reservationServiceMock{})
	c, w := newContext(http.MethodGet, "/reservations?status=reserved", "", volunteer)
	h.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

type adminMock struct {
	inspectReq dto.InspectRequest
	err        error
}

func (m *adminMock) Inspect(ctx context.Context, offerID string, req dto.InspectRequest, actor *models.JWTClaims) (*dto.InspectResult, error) {
	m.inspectReq = req
	return &dto.InspectResult{Offer: &models.Offer{ID: offerID}, Credited: true}, m.err
}

func (m *adminMock) RejectStock(ctx context.Context, id string, req dto.RejectStockRequest, actor *models.JWTClaims) (*models.Offer, error) {
	return &models.Offer{ID: id, Status: models.OfferStatusRejected}, m.err
}

func (m *adminMock) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	return []models.AuditLog{{ID: "a-1", Action: models.AuditActionOfferCreate}}, m.err
}

func (m *adminMock) ConfirmHandover(ctx context.Context, reservationID string, actor *models.JWTClaims) (*models.Offer, error) {
	return &models.Offer{ID: reservationID, Status: models.OfferStatusDistributed}, m.err
}

func (m *adminMock) ForceRelease(ctx context.Context, reservationID string, req dto.ForceReleaseRequest, actor *models.JWTClaims) (*models.Offer, error) {
	return &models.Offer{ID: reservationID, Status: models.OfferStatusDistributed}, m.err
}

func (m *adminMock) SweepExpired(ctx context.Context) (*dto.SweepResult, error) {
	return &dto.SweepResult{Released: 2, ReservationIDs: []string{"r-1", "r-2"}}, m.err
}

func newAdminHandler(m *adminMock) *AdminHandler {
	return NewAdminHandler(AdminDeps{Inspector: m, Stock: m, Handover: m, Override: m, Sweeper: m})
}

func TestAdminHandlerInspect(t *testing.T) {
	m := &adminMock{}
	h := newAdminHandler(m)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	c, w := newContext(http.MethodPost, "/admin/offers/offer-1/inspect", `{"passed":false,"reason":"moldy"}`, admin)
	c.Params = gin.Params{{Key: "id", Value: "offer-1"}}
	h.Inspect(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, m.inspectReq.Passed)
	assert.False(t, *m.inspectReq.Passed)
	assert.Equal(t, "moldy", m.inspectReq.Reason)
}

func TestAdminHandlerEndpoints(t *testing.T) {
	h := newAdminHandler(&adminMock{})
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

	c, w := newContext(http.MethodPost, "/admin/offers/o/reject", `{"reason":"spoiled"}`, admin)
	h.Reject(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodPost, "/admin/reservations/r/handover", "", admin)
	h.Handover(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodPost, "/admin/reservations/r/force-release", `{"note":"no-show"}`, admin)
	h.ForceRelease(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newContext(http.MethodPost, "/admin/reservations/sweep", "", admin)
	h.Sweep(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"released":2`)

	c, w = newContext(http.MethodGet, "/admin/offers/o/audit", "", admin)
	h.AuditTrail(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandlerForceReleaseConflict(t *testing.T) {
	h := newAdminHandler(&adminMock{err: appErrors.ErrAlreadyTerminal})
	c, w := newContext(http.MethodPost, "/admin/reservations/r/force-release", `{"note":"no-show"}`, volunteer)
	h.ForceRelease(c)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, appErrors.ErrAlreadyTerminal.Code, decodeError(t, w))
}

type exporterMock struct {
	query dto.ManifestQuery
	err   error
}

func (m *exporterMock) PickupManifest(ctx context.Context, query dto.ManifestQuery) (*service.ExportFile, error) {
	m.query = query
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{Filename: "pickup-manifest.csv", ContentType: "text/csv", Body: []byte("a,b\n")}, nil
}

func TestExportHandlerPickupManifest(t *testing.T) {
	m := &exporterMock{}
	h := NewExportHandler(m)

	c, w := newContext(http.MethodGet, "/admin/exports/reservations?format=csv", "", volunteer)
	h.PickupManifest(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", m.query.Format)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "pickup-manifest.csv")
	assert.Equal(t, "a,b\n", w.Body.String())

	h = NewExportHandler(&exporterMock{err: appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")})
	c, w = newContext(http.MethodGet, "/admin/exports/reservations?format=xlsx", "", volunteer)
	h.PickupManifest(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type needServiceMock struct {
	item string
	req  dto.SetTargetRequest
	err  error
}

func (m *needServiceMock) GetNeedsProgress(ctx context.Context, reportID string) ([]models.NeedProgress, error) {
	return []models.NeedProgress{{ItemName: "Beras"}}, m.err
}

func (m *needServiceMock) SetTargetOverride(ctx context.Context, reportID, item string, req dto.SetTargetRequest, actor *models.JWTClaims) ([]models.NeedProgress, error) {
	m.item = item
	m.req = req
	return nil, m.err
}

func (m *needServiceMock) ClearTargetOverride(ctx context.Context, reportID, item string, actor *models.JWTClaims) ([]models.NeedProgress, error) {
	m.item = item
	return nil, m.err
}

func TestNeedHandler(t *testing.T) {
	m := &needServiceMock{}
	h := NewNeedHandler(m)

	c, w := newContext(http.MethodGet, "/reports/r-1/needs", "", volunteer)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}}
	h.Progress(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Beras")

	c, w = newContext(http.MethodPut, "/reports/r-1/needs/Beras/target", `{"target":40}`, volunteer)
	c.Params = gin.Params{{Key: "id", Value: "r-1"}, {Key: "item", Value: "Beras"}}
	h.SetTarget(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Beras", m.item)
	assert.Equal(t, 40, m.req.Target)

	m.err = appErrors.ErrNotFound
	c, w = newContext(http.MethodDelete, "/reports/r-1/needs/Beras/target", "", volunteer)
	h.ClearTarget(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type rewardServiceMock struct{ err error }

func (m rewardServiceMock) Balance(ctx context.Context, actor *models.JWTClaims) (*models.DonorRewards, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.DonorRewards{DonorID: actor.UserID, Points: 150}, nil
}

func TestRewardHandlerMe(t *testing.T) {
	c, w := newContext(http.MethodGet, "/rewards/me", "", volunteer)
	NewRewardHandler(rewardServiceMock{}).Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "150")

	c, w = newContext(http.MethodGet, "/rewards/me", "", nil)
	NewRewardHandler(rewardServiceMock{err: appErrors.ErrUnauthorized}).Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type pingerStub struct{ err error }

func (p pingerStub) PingContext(ctx context.Context) error { return p.err }

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), map[string]Pinger{"postgres": pingerStub{}})
	c, w := newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, w.Code)

	h = NewMetricsHandler(nil, map[string]Pinger{"redis": pingerStub{err: errors.New("connection refused")}})
	c, w = newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	c, w = newContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
