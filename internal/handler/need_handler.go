package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

type needService interface {
	GetNeedsProgress(ctx context.Context, reportID string) ([]models.NeedProgress, error)
	SetTargetOverride(ctx context.Context, reportID, item string, req dto.SetTargetRequest, actor *models.JWTClaims) ([]models.NeedProgress, error)
	ClearTargetOverride(ctx context.Context, reportID, item string, actor *models.JWTClaims) ([]models.NeedProgress, error)
}

// NeedHandler exposes per-report need progress.
type NeedHandler struct {
	service needService
}

// NewNeedHandler builds a new handler.
func NewNeedHandler(service needService) *NeedHandler {
	return &NeedHandler{service: service}
}

// Progress godoc
// @Summary Show collected versus target for every need of a report
// @Tags Needs
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{id}/needs [get]
func (h *NeedHandler) Progress(c *gin.Context) {
	progress, err := h.service.GetNeedsProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// SetTarget godoc
// @Summary Override the target of one need
// @Tags Needs
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param item path string true "Item name"
// @Param payload body dto.SetTargetRequest true "Target payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{id}/needs/{item}/target [put]
func (h *NeedHandler) SetTarget(c *gin.Context) {
	var req dto.SetTargetRequest
	if !bindJSON(c, &req, "target") {
		return
	}
	progress, err := h.service.SetTargetOverride(c.Request.Context(), c.Param("id"), c.Param("item"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// ClearTarget godoc
// @Summary Drop a target override and fall back to the severity default
// @Tags Needs
// @Produce json
// @Param id path string true "Report ID"
// @Param item path string true "Item name"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/{id}/needs/{item}/target [delete]
func (h *NeedHandler) ClearTarget(c *gin.Context) {
	progress, err := h.service.ClearTargetOverride(c.Request.Context(), c.Param("id"), c.Param("item"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
