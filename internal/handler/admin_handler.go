package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/internal/service"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

type inspector interface {
	Inspect(ctx context.Context, offerID string, req dto.InspectRequest, actor *models.JWTClaims) (*dto.InspectResult, error)
}

type stockAdmin interface {
	RejectStock(ctx context.Context, id string, req dto.RejectStockRequest, actor *models.JWTClaims) (*models.Offer, error)
	AuditTrail(ctx context.Context, id string) ([]models.AuditLog, error)
}

type handoverConfirmer interface {
	ConfirmHandover(ctx context.Context, reservationID string, actor *models.JWTClaims) (*models.Offer, error)
}

type forceReleaser interface {
	ForceRelease(ctx context.Context, reservationID string, req dto.ForceReleaseRequest, actor *models.JWTClaims) (*models.Offer, error)
}

type expirySweeper interface {
	SweepExpired(ctx context.Context) (*dto.SweepResult, error)
}

// AdminDeps groups the command-post services.
type AdminDeps struct {
	Inspector inspector
	Stock     stockAdmin
	Handover  handoverConfirmer
	Override  forceReleaser
	Sweeper   expirySweeper
}

// AdminHandler exposes command-post endpoints.
type AdminHandler struct {
	deps AdminDeps
}

// NewAdminHandler builds a new handler.
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// Inspect godoc
// @Summary Record the quality check of a staged offer
// @Description A pass makes the stock claimable and credits the donor once.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param payload body dto.InspectRequest true "Inspection payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/offers/{id}/inspect [post]
func (h *AdminHandler) Inspect(c *gin.Context) {
	var req dto.InspectRequest
	if !bindJSON(c, &req, "inspection") {
		return
	}
	result, err := h.deps.Inspector.Inspect(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Pull available stock out of circulation
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param payload body dto.RejectStockRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/offers/{id}/reject [post]
func (h *AdminHandler) Reject(c *gin.Context) {
	var req dto.RejectStockRequest
	if !bindJSON(c, &req, "rejection") {
		return
	}
	offer, err := h.deps.Stock.RejectStock(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}

// Handover godoc
// @Summary Confirm a reservation was collected
// @Tags Admin
// @Produce json
// @Param id path string true "Reservation ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reservations/{id}/handover [post]
func (h *AdminHandler) Handover(c *gin.Context) {
	offer, err := h.deps.Handover.ConfirmHandover(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}

// ForceRelease godoc
// @Summary Finalize a reservation that was never picked up
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param payload body dto.ForceReleaseRequest true "Override note"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reservations/{id}/force-release [post]
func (h *AdminHandler) ForceRelease(c *gin.Context) {
	var req dto.ForceReleaseRequest
	if !bindJSON(c, &req, "override") {
		return
	}
	offer, err := h.deps.Override.ForceRelease(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}

// Sweep godoc
// @Summary Return overdue reservations to stock
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reservations/sweep [post]
func (h *AdminHandler) Sweep(c *gin.Context) {
	result, err := h.deps.Sweeper.SweepExpired(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AuditTrail godoc
// @Summary List the audit trail of an offer
// @Tags Admin
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/offers/{id}/audit [get]
func (h *AdminHandler) AuditTrail(c *gin.Context) {
	logs, err := h.deps.Stock.AuditTrail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

type manifestExporter interface {
	PickupManifest(ctx context.Context, query dto.ManifestQuery) (*service.ExportFile, error)
}

// ExportHandler serves downloadable documents.
type ExportHandler struct {
	exporter manifestExporter
}

// NewExportHandler builds a new handler.
func NewExportHandler(exporter manifestExporter) *ExportHandler {
	return &ExportHandler{exporter: exporter}
}

// PickupManifest godoc
// @Summary Download the pickup manifest
// @Tags Admin
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Param status query string false "Reservation status (default reserved)"
// @Param reportId query string false "Report ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /admin/exports/reservations [get]
func (h *ExportHandler) PickupManifest(c *gin.Context) {
	var query dto.ManifestQuery
	if !bindQuery(c, &query) {
		return
	}
	file, err := h.exporter.PickupManifest(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}
