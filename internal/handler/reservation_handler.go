package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

type reservationService interface {
	Claim(ctx context.Context, offerID string, req dto.ClaimRequest, actor *models.JWTClaims) (*models.ClaimReceipt, error)
	ListReservations(ctx context.Context, query dto.ReservationQuery, actor *models.JWTClaims) ([]models.Offer, error)
}

// ReservationHandler exposes claim endpoints.
type ReservationHandler struct {
	service reservationService
}

// NewReservationHandler builds a new handler.
func NewReservationHandler(service reservationService) *ReservationHandler {
	return &ReservationHandler{service: service}
}

// Claim godoc
// @Summary Claim part of an available offer
// @Description Splits a reservation off the offer and holds it for pickup.
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Offer ID"
// @Param payload body dto.ClaimRequest true "Claim payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Security BearerAuth
// @Router /offers/{id}/claims [post]
func (h *ReservationHandler) Claim(c *gin.Context) {
	var req dto.ClaimRequest
	if !bindJSON(c, &req, "claim") {
		return
	}
	receipt, err := h.service.Claim(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, receipt)
}

// List godoc
// @Summary List reservations
// @Description Callers see their own holds; admins see all.
// @Tags Reservations
// @Produce json
// @Param status query string false "Reservation status"
// @Param parentId query string false "Parent offer ID"
// @Param reportId query string false "Report ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reservations [get]
func (h *ReservationHandler) List(c *gin.Context) {
	var query dto.ReservationQuery
	if !bindQuery(c, &query) {
		return
	}
	items, err := h.service.ListReservations(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, listPagination(query.Limit, query.Offset, len(items)))
}
