package service

import (
	"context"
	"time"

	"github.com/digkill/faithtrain/internal/models"
)

// Store is the backing data store contract. Implementations must run InTx
// as a single serializable unit: either every write inside fn is applied or
// none is. Calls on the Store passed to fn participate in that unit;
// calling InTx on it again joins the same unit.
type Store interface {
	Users() UserStore
	Usage() UsageStore
	Streaks() StreakStore
	Ledger() LedgerStore
	Boosters() BoosterStore
	Rewards() RewardStore
	Subscriptions() SubscriptionStore
	Codes() CodeStore
	Preferences() PreferenceStore
	InTx(ctx context.Context, fn func(tx Store) error) error
}

type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, username, firstName string) error
}

type UsageStore interface {
	Count(ctx context.Context, userID int64, feature string, periodStart time.Time) (int, error)
	// IncrementBelow adds one to the counter only while it is below limit and
	// reports the resulting count.
	IncrementBelow(ctx context.Context, userID int64, feature string, periodStart time.Time, limit int) (int, bool, error)
}

type StreakStore interface {
	// RecordActivity stores the activity and reports false when the same
	// kind was already recorded for that day.
	RecordActivity(ctx context.Context, userID int64, kind models.ActivityKind, day time.Time) (bool, error)
	ActivityDays(ctx context.Context, userID int64) ([]time.Time, error)
	BridgedDays(ctx context.Context, userID int64) ([]time.Time, error)
	RecordBridge(ctx context.Context, userID int64, day time.Time) (bool, error)
	GetState(ctx context.Context, userID int64) (*models.StreakState, error)
	SaveState(ctx context.Context, state *models.StreakState) error
}

type LedgerStore interface {
	Balance(ctx context.Context, userID int64) (int64, error)
	Credit(ctx context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, error)
	// Debit reports false without writing anything when amount exceeds the balance.
	Debit(ctx context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, bool, error)
	Entries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error)
	EntriesBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error)
}

type BoosterStore interface {
	ListActive(ctx context.Context, userID int64, now time.Time) ([]models.ActiveBooster, error)
	FindActive(ctx context.Context, userID int64, kind models.EffectKind, now time.Time) (*models.ActiveBooster, error)
	Create(ctx context.Context, booster *models.ActiveBooster) error
	ExtendUntil(ctx context.Context, id string, expiresAt time.Time) error
	AddUses(ctx context.Context, id string, uses int) error
	// ConsumeUse decrements the pool and reports false when it was already empty.
	ConsumeUse(ctx context.Context, id string) (bool, error)
}

type RewardStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Reward, error)
	GetByID(ctx context.Context, id int64) (*models.Reward, error)
	// Lock reads the reward and holds it against concurrent redemptions
	// until the surrounding transaction ends.
	Lock(ctx context.Context, id int64) (*models.Reward, error)
	Create(ctx context.Context, reward *models.Reward) (*models.Reward, error)
	Update(ctx context.Context, reward *models.Reward) (*models.Reward, error)
	IncrementRedeemed(ctx context.Context, id int64) (bool, error)

	CreateGrant(ctx context.Context, grant *models.UserRewardGrant) error
	LockGrant(ctx context.Context, id string) (*models.UserRewardGrant, error)
	HasGrant(ctx context.Context, userID, rewardID int64) (bool, error)
	ListGrants(ctx context.Context, userID int64) ([]models.UserRewardGrant, error)
	SetEquipped(ctx context.Context, grantID string, equipped bool) error
	MarkActivated(ctx context.Context, grantID string, at time.Time) (bool, error)
}

type SubscriptionStore interface {
	Get(ctx context.Context, userID int64) (*models.SubscriptionRecord, error)
	Upsert(ctx context.Context, record *models.SubscriptionRecord) error
}

type CodeStore interface {
	Create(ctx context.Context, code *models.RedemptionCode) (*models.RedemptionCode, error)
	List(ctx context.Context) ([]models.RedemptionCode, error)
	Lock(ctx context.Context, code string) (*models.RedemptionCode, error)
	RecordRedemption(ctx context.Context, userID, codeID int64) (bool, error)
	IncrementUses(ctx context.Context, codeID int64) (bool, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID int64, key string) (string, bool, error)
	Set(ctx context.Context, userID int64, key, value string) error
}

// SubscriptionReader is satisfied by SubscriptionStore and by read-through caches.
type SubscriptionReader interface {
	Get(ctx context.Context, userID int64) (*models.SubscriptionRecord, error)
}

// SubscriptionInvalidator drops any cached copy of a user's subscription.
type SubscriptionInvalidator interface {
	Invalidate(ctx context.Context, userID int64)
}
