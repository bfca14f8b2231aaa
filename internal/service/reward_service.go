package service

import (
	"context"

	"github.com/noah-isme/relief-ledger-api/internal/models"
	appErrors "github.com/noah-isme/relief-ledger-api/pkg/errors"
)

type rewardBalanceReader interface {
	GetBalance(ctx context.Context, donorID string) (*models.DonorRewards, error)
}

// RewardService exposes donor balances.
type RewardService struct {
	rewards rewardBalanceReader
}

// NewRewardService constructs a RewardService.
func NewRewardService(rewards rewardBalanceReader) *RewardService {
	return &RewardService{rewards: rewards}
}

// Balance returns the caller's reward points.
func (s *RewardService) Balance(ctx context.Context, actor *models.JWTClaims) (*models.DonorRewards, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	balance, err := s.rewards.GetBalance(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reward balance")
	}
	return balance, nil
}
