package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

type RedeemResult struct {
	Grant   *models.UserRewardGrant `json:"grant"`
	Reward  *models.Reward          `json:"reward"`
	Balance int64                   `json:"balance"`
}

// RedemptionService exchanges points for catalog rewards and manages the
// resulting grants.
type RedemptionService struct {
	store  Store
	ledger *PointsLedger
	clock  clockwork.Clock
	hub    *StateHub
	log    *slog.Logger
}

func NewRedemptionService(store Store, ledger *PointsLedger, clock clockwork.Clock, hub *StateHub, log *slog.Logger) *RedemptionService {
	return &RedemptionService{store: store, ledger: ledger, clock: clock, hub: hub, log: log}
}

// Redeem runs check-balance, debit and grant as one unit. The reward row
// stays locked for the whole unit, so the last unit of stock goes to
// exactly one caller.
func (s *RedemptionService) Redeem(ctx context.Context, userID, rewardID int64) (*RedeemResult, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	var out *RedeemResult
	err := s.store.InTx(ctx, func(tx Store) error {
		reward, err := tx.Rewards().Lock(ctx, rewardID)
		if err != nil {
			return fmt.Errorf("lock reward: %w", err)
		}
		if reward == nil {
			return ErrRewardNotFound
		}
		if !reward.Active {
			return ErrRewardInactive
		}
		if reward.PremiumOnly {
			rec, err := tx.Subscriptions().Get(ctx, userID)
			if err != nil {
				return fmt.Errorf("get subscription: %w", err)
			}
			if !rec.IsPremium(s.clock.Now()) {
				return ErrPremiumRequired
			}
		}
		if reward.StockExhausted() {
			return ErrStockExhausted
		}
		if reward.UniquePerUser {
			owned, err := tx.Rewards().HasGrant(ctx, userID, reward.ID)
			if err != nil {
				return fmt.Errorf("check ownership: %w", err)
			}
			if owned {
				return ErrAlreadyOwned
			}
		}

		entry, err := s.ledger.debit(ctx, tx, userID, reward.Cost, "redeem:"+reward.Slug)
		if err != nil {
			return err
		}

		grant := &models.UserRewardGrant{
			ID:         uuid.NewString(),
			UserID:     userID,
			RewardID:   reward.ID,
			RedeemedAt: s.clock.Now().UTC(),
		}
		if err := tx.Rewards().CreateGrant(ctx, grant); err != nil {
			return fmt.Errorf("create grant: %w", err)
		}

		ok, err := tx.Rewards().IncrementRedeemed(ctx, reward.ID)
		if err != nil {
			return fmt.Errorf("increment redeemed: %w", err)
		}
		if !ok {
			return ErrStockExhausted
		}
		reward.TimesRedeemed++

		out = &RedeemResult{Grant: grant, Reward: reward, Balance: entry.BalanceAfter}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("reward redeemed", "user", userID, "reward", rewardID, "grant", out.Grant.ID)
	s.hub.Publish(StateChange{UserID: userID, Topic: TopicBalance, Payload: out.Balance})
	s.hub.Publish(StateChange{UserID: userID, Topic: TopicGrants, Payload: out.Grant})
	return out, nil
}

// Equip toggles the equipped flag. Several grants may be equipped at once.
func (s *RedemptionService) Equip(ctx context.Context, userID int64, grantID string, equip bool) (*models.UserRewardGrant, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	var out *models.UserRewardGrant
	err := s.store.InTx(ctx, func(tx Store) error {
		grant, err := tx.Rewards().LockGrant(ctx, grantID)
		if err != nil {
			return fmt.Errorf("lock grant: %w", err)
		}
		if grant == nil || grant.UserID != userID {
			return ErrGrantNotFound
		}
		if grant.IsEquipped != equip {
			if err := tx.Rewards().SetEquipped(ctx, grant.ID, equip); err != nil {
				return fmt.Errorf("set equipped: %w", err)
			}
			grant.IsEquipped = equip
		}
		out = grant
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.Publish(StateChange{UserID: userID, Topic: TopicGrants, Payload: out})
	return out, nil
}

func (s *RedemptionService) Grants(ctx context.Context, userID int64) ([]models.UserRewardGrant, error) {
	grants, err := s.store.Rewards().ListGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}
