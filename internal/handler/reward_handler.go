package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	"github.com/noah-isme/relief-ledger-api/pkg/response"
)

type rewardService interface {
	Balance(ctx context.Context, actor *models.JWTClaims) (*models.DonorRewards, error)
}

// RewardHandler exposes donor reward balances.
type RewardHandler struct {
	service rewardService
}

// NewRewardHandler builds a new handler.
func NewRewardHandler(service rewardService) *RewardHandler {
	return &RewardHandler{service: service}
}

// Me godoc
// @Summary Show the caller's reward balance
// @Tags Rewards
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /rewards/me [get]
func (h *RewardHandler) Me(c *gin.Context) {
	balance, err := h.service.Balance(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, balance, nil)
}
