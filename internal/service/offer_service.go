package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/repository"
	"github.com/noah-isme/relief-ledger-api/pkg/database"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

type offerStore interface {
	offerLedger
	offerReader
}

type auditReader interface {
	ListByResource(ctx context.Context, resource, resourceID string) ([]models.AuditLog, error)
}

// OfferService owns offer creation, reads and stock rejection.
type OfferService struct {
	offers    offerStore
	audits    auditReader
	validator *validator.Validate
	logger    *zap.Logger
	ledgerDeps
}

// NewOfferService constructs an OfferService.
func NewOfferService(offers offerStore, audits auditReader, validate *validator.Validate, logger *zap.Logger, opts ...LedgerOption) *OfferService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OfferService{
		offers:     offers,
		audits:     audits,
		validator:  validate,
		logger:     logger,
		ledgerDeps: newLedgerDeps(opts),
	}
}

// Create records a pledge as staged, or a listing as available.
func (s *OfferService) Create(ctx context.Context, req dto.CreateOfferRequest, actor *models.JWTClaims) (*models.Offer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid offer payload")
	}
	if req.Quantity <= 0 {
		return nil, appErrors.ErrInvalidQuantity
	}

	now := s.now()
	status := models.OfferStatusStaged
	if req.Listing {
		status = models.OfferStatusAvailable
	}
	offer := &models.Offer{
		ID:             uuid.NewString(),
		DonorID:        actor.UserID,
		DonorName:      actor.FullName,
		ItemName:       strings.TrimSpace(req.ItemName),
		Quantity:       req.Quantity,
		Unit:           strings.TrimSpace(req.Unit),
		Category:       strings.TrimSpace(req.Category),
		Description:    strings.TrimSpace(req.Description),
		ImageURL:       req.ImageURL,
		LocationName:   req.LocationName,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		DeliveryMethod: models.DeliveryMethod(req.DeliveryMethod),
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.ReportID != nil && strings.TrimSpace(*req.ReportID) != "" {
		reportID := strings.TrimSpace(*req.ReportID)
		offer.ReportID = &reportID
	}

	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		if err := tx.Insert(ctx, offer); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, &models.AuditLog{
			UserID:     optionalString(actor.UserID),
			Action:     models.AuditActionOfferCreate,
			Resource:   models.AuditResourceOffer,
			ResourceID: &offer.ID,
			NewValues:  snapshotOffer(offer),
			CreatedAt:  now,
		})
	})
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, ledgerError(err, "failed to create offer")
	}
	s.emit(models.EventOfferCreated, offer, actor.UserID, "")
	return offer, nil
}

// Get fetches a single offer.
func (s *OfferService) Get(ctx context.Context, id string) (*models.Offer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "offer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offer")
	}
	return offer, nil
}

// ListByStatus returns offers in one status.
func (s *OfferService) ListByStatus(ctx context.Context, status models.OfferStatus, limit, offset int) ([]models.Offer, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown offer status")
	}
	return s.list(ctx, models.OfferFilter{Statuses: []models.OfferStatus{status}, Limit: limit, Offset: offset})
}

// ListByTarget returns every offer pledged to one (report, item) need.
func (s *OfferService) ListByTarget(ctx context.Context, reportID, itemName string) ([]models.Offer, error) {
	if strings.TrimSpace(reportID) == "" || strings.TrimSpace(itemName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reportId and item are required")
	}
	return s.list(ctx, models.OfferFilter{ReportID: reportID, ItemName: itemName, Unpaged: true})
}

// ListAvailable returns claimable stock. A status in the query switches to a
// plain status listing.
func (s *OfferService) ListAvailable(ctx context.Context, query dto.OfferQuery) ([]models.Offer, error) {
	filter := models.OfferFilter{
		ReportID: strings.TrimSpace(query.ReportID),
		ItemName: strings.TrimSpace(query.Item),
		Category: strings.TrimSpace(query.Category),
		Limit:    query.Limit,
		Offset:   query.Offset,
	}
	if query.Status != "" {
		status, ok := models.ParseOfferStatus(query.Status)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown offer status")
		}
		filter.Statuses = []models.OfferStatus{status}
	} else {
		filter.Statuses = []models.OfferStatus{models.OfferStatusAvailable}
		filter.ClaimableOnly = true
	}
	return s.list(ctx, filter)
}

func (s *OfferService) list(ctx context.Context, filter models.OfferFilter) ([]models.Offer, error) {
	offers, err := s.offers.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list offers")
	}
	if offers == nil {
		offers = []models.Offer{}
	}
	return offers, nil
}

// transitionStatus locks an offer and moves it to status to. A non-empty
// from narrows the transition table to that source status. It stays
// unexported so side effects such as reward credit or expiry checks cannot
// be skipped by calling it directly.
func (s *OfferService) transitionStatus(ctx context.Context, id string, to models.OfferStatus, from models.OfferStatus, fields TransitionFields) (*models.Offer, error) {
	if !to.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown offer status")
	}
	var (
		result *models.Offer
		prev   models.OfferStatus
	)
	err := s.offers.WithinTx(ctx, func(tx repository.OfferTx) error {
		offer, err := lockOffer(ctx, tx, id)
		if err != nil {
			return err
		}
		if from != "" {
			if err := requireStatus(offer, from); err != nil {
				return err
			}
		}
		prev = offer.Status
		if err := applyTransition(ctx, tx, offer, to, models.AuditActionOfferTransition, fields, s.now()); err != nil {
			return err
		}
		result = offer
		return nil
	})
	if err != nil {
		return nil, ledgerError(err, "failed to transition offer")
	}
	s.recordTransition(prev, to)
	return result, nil
}

// RejectStock pulls spoiled available stock out of circulation.
func (s *OfferService) RejectStock(ctx context.Context, id string, req dto.RejectStockRequest, actor *models.JWTClaims) (*models.Offer, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid reject payload")
	}
	fields := TransitionFields{ActorID: actor.UserID, Reason: strings.TrimSpace(req.Reason)}
	result, err := s.transitionStatus(ctx, id, models.OfferStatusRejected, models.OfferStatusAvailable, fields)
	if err != nil {
		return nil, err
	}
	s.emit(models.EventOfferRejected, result, actor.UserID, req.Reason)
	return result, nil
}

// AuditTrail returns the recorded history of an offer.
func (s *OfferService) AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if s.audits == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.audits.ListByResource(ctx, models.AuditResourceOffer, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}
