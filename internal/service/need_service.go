package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

const auditResourceReport = "report"

type reportRepository interface {
	GetByID(ctx context.Context, id string) (*models.Report, error)
	ListTargets(ctx context.Context, reportID string) ([]models.NeedTarget, error)
	UpsertTarget(ctx context.Context, target *models.NeedTarget) error
	DeleteTarget(ctx context.Context, reportID, itemName string) (bool, error)
}

type countedOfferLister interface {
	ListCountedByReport(ctx context.Context, reportID string) ([]models.Offer, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// NeedService projects report needs from live offer state. Nothing it
// returns is cached.
type NeedService struct {
	reports   reportRepository
	offers    countedOfferLister
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

// NewNeedService constructs a NeedService.
func NewNeedService(reports reportRepository, offers countedOfferLister, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *NeedService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NeedService{reports: reports, offers: offers, audit: audit, validator: validate, logger: logger}
}

// GetNeedsProgress returns collected and target per item of a report.
func (s *NeedService) GetNeedsProgress(ctx context.Context, reportID string) ([]models.NeedProgress, error) {
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return s.progress(ctx, report)
}

// SetTargetOverride replaces the severity default of one item.
func (s *NeedService) SetTargetOverride(ctx context.Context, reportID, item string, req dto.SetTargetRequest, actor *models.JWTClaims) ([]models.NeedProgress, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid target payload")
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !report.HasNeed(item) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "item is not a need of this report")
	}

	target := &models.NeedTarget{ReportID: report.ID, ItemName: item, Target: req.Target, SetBy: actor.UserID}
	if err := s.reports.UpsertTarget(ctx, target); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save need target")
	}
	s.recordAudit(ctx, actor, report.ID, models.AuditActionTargetOverride, map[string]interface{}{
		"item":   target.ItemName,
		"target": target.Target,
	})
	return s.progress(ctx, report)
}

// ClearTargetOverride restores the severity default of one item.
func (s *NeedService) ClearTargetOverride(ctx context.Context, reportID, item string, actor *models.JWTClaims) ([]models.NeedProgress, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	report, err := s.loadReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	removed, err := s.reports.DeleteTarget(ctx, report.ID, item)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear need target")
	}
	if !removed {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no target override for item")
	}
	s.recordAudit(ctx, actor, report.ID, models.AuditActionTargetCleared, map[string]interface{}{
		"item": models.NormalizeItemName(item),
	})
	return s.progress(ctx, report)
}

func (s *NeedService) loadReport(ctx context.Context, reportID string) (*models.Report, error) {
	if strings.TrimSpace(reportID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "report id is required")
	}
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	return report, nil
}

func (s *NeedService) progress(ctx context.Context, report *models.Report) ([]models.NeedProgress, error) {
	targets, err := s.reports.ListTargets(ctx, report.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load need targets")
	}
	offers, err := s.offers.ListCountedByReport(ctx, report.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load offers")
	}
	return models.AggregateNeeds(*report, targets, offers), nil
}

func (s *NeedService) recordAudit(ctx context.Context, actor *models.JWTClaims, reportID, action string, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(values)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     optionalString(actor.UserID),
		Action:     action,
		Resource:   auditResourceReport,
		ResourceID: &reportID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record need target audit log", zap.Error(err))
	}
}
