package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/dto"
	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

type offerService interface {
	Create(ctx context.Context, req dto.CreateOfferRequest, actor *models.JWTClaims) (*models.Offer, error)
	Get(ctx context.Context, id string) (*models.Offer, error)
	ListAvailable(ctx context.Context, query dto.OfferQuery) ([]models.Offer, error)
}

// OfferHandler exposes pledge and listing endpoints.
type OfferHandler struct {
	service offerService
}

// NewOfferHandler builds a new handler.
func NewOfferHandler(service offerService) *OfferHandler {
	return &OfferHandler{service: service}
}

// Create godoc
// @Summary Pledge or list donated goods
// @Description Pledges enter staging until inspected; listings are claimable at once.
// @Tags Offers
// @Accept json
// @Produce json
// @Param payload body dto.CreateOfferRequest true "Offer payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /offers [post]
func (h *OfferHandler) Create(c *gin.Context) {
	var req dto.CreateOfferRequest
	if !bindJSON(c, &req, "offer") {
		return
	}
	offer, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, offer)
}

// List godoc
// @Summary List offers
// @Description Without a status only claimable stock is returned.
// @Tags Offers
// @Produce json
// @Param status query string false "Offer status"
// @Param reportId query string false "Report ID"
// @Param item query string false "Item name"
// @Param category query string false "Category"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /offers [get]
func (h *OfferHandler) List(c *gin.Context) {
	var query dto.OfferQuery
	if !bindQuery(c, &query) {
		return
	}
	offers, err := h.service.ListAvailable(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offers, listPagination(query.Limit, query.Offset, len(offers)))
}

// Get godoc
// @Summary Get an offer
// @Tags Offers
// @Produce json
// @Param id path string true "Offer ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /offers/{id} [get]
func (h *OfferHandler) Get(c *gin.Context) {
	offer, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, offer, nil)
}
