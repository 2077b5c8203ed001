package models

import "time"

type ActivityKind string

const (
	ActivityReading ActivityKind = "reading"
	ActivityPrayer  ActivityKind = "prayer"
	ActivityWorship ActivityKind = "worship"
)

func (k ActivityKind) Valid() bool {
	switch k {
	case ActivityReading, ActivityPrayer, ActivityWorship:
		return true
	}
	return false
}

type User struct {
	ID         int64     `json:"id"`
	TelegramID int64     `json:"telegram_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type StreakState struct {
	UserID         int64      `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
	ActiveToday    bool       `json:"active_today"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ActivityLog struct {
	ID           int64        `json:"id"`
	UserID       int64        `json:"user_id"`
	Kind         ActivityKind `json:"kind"`
	ActivityDate time.Time    `json:"activity_date"`
	CreatedAt    time.Time    `json:"created_at"`
}

type LedgerDirection string

const (
	LedgerCredit LedgerDirection = "credit"
	LedgerDebit  LedgerDirection = "debit"
)

type PointsBalance struct {
	UserID    int64     `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

type LedgerEntry struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Direction    LedgerDirection `json:"direction"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Reason       string          `json:"reason"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RewardCategory string

const (
	RewardCosmetic RewardCategory = "cosmetic"
	RewardBooster  RewardCategory = "booster"
)

type Reward struct {
	ID            int64          `json:"id"`
	Slug          string         `json:"slug"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Category      RewardCategory `json:"category"`
	Cost          int64          `json:"cost"`
	StockLimit    *int           `json:"stock_limit,omitempty"`
	TimesRedeemed int            `json:"times_redeemed"`
	PremiumOnly   bool           `json:"premium_only"`
	UniquePerUser bool           `json:"unique_per_user"`
	Active        bool           `json:"active"`
	EffectKind    EffectKind     `json:"effect_kind,omitempty"`
	EffectMinutes int            `json:"effect_minutes,omitempty"`
	EffectUses    int            `json:"effect_uses,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// StockExhausted reports whether a stock-limited reward has no units left.
func (r *Reward) StockExhausted() bool {
	return r.StockLimit != nil && r.TimesRedeemed >= *r.StockLimit
}

type UserRewardGrant struct {
	ID          string     `json:"id"`
	UserID      int64      `json:"user_id"`
	RewardID    int64      `json:"reward_id"`
	RedeemedAt  time.Time  `json:"redeemed_at"`
	IsEquipped  bool       `json:"is_equipped"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
}

type EffectKind string

const (
	EffectDoublePoints EffectKind = "double_points"
	EffectStreakFreeze EffectKind = "streak_freeze"
)

func (k EffectKind) Valid() bool {
	return k == EffectDoublePoints || k == EffectStreakFreeze
}

type ActiveBooster struct {
	ID            string     `json:"id"`
	UserID        int64      `json:"user_id"`
	Kind          EffectKind `json:"kind"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	UsesRemaining *int       `json:"uses_remaining,omitempty"`
	SourceGrantID string     `json:"source_grant_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// IsActive applies the expiry and use-pool checks at the given instant.
func (b *ActiveBooster) IsActive(now time.Time) bool {
	if b.ExpiresAt != nil && !b.ExpiresAt.After(now) {
		return false
	}
	if b.UsesRemaining != nil && *b.UsesRemaining <= 0 {
		return false
	}
	return true
}

type UsagePeriod string

const (
	PeriodDaily    UsagePeriod = "daily"
	PeriodWeekly   UsagePeriod = "weekly"
	PeriodMonthly  UsagePeriod = "monthly"
	PeriodLifetime UsagePeriod = "lifetime"
)

type FeatureUsageCounter struct {
	UserID      int64     `json:"user_id"`
	Feature     string    `json:"feature"`
	PeriodStart time.Time `json:"period_start"`
	Count       int       `json:"count"`
}

type Tier string

const (
	TierFree            Tier = "free"
	TierPremiumMonthly  Tier = "premium_monthly"
	TierPremiumAnnual   Tier = "premium_annual"
	TierPremiumLifetime Tier = "premium_lifetime"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremiumMonthly, TierPremiumAnnual, TierPremiumLifetime:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	StatusActive    SubscriptionStatus = "active"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusExpired   SubscriptionStatus = "expired"
	StatusTrialing  SubscriptionStatus = "trialing"
)

type SubscriptionSource string

const (
	SourceSubscription   SubscriptionSource = "subscription"
	SourceRedemptionCode SubscriptionSource = "redemption_code"
	SourcePromo          SubscriptionSource = "promo"
	SourceAdminGrant     SubscriptionSource = "admin_grant"
)

type SubscriptionRecord struct {
	UserID    int64              `json:"user_id"`
	Tier      Tier               `json:"tier"`
	Status    SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time         `json:"expires_at,omitempty"`
	Source    SubscriptionSource `json:"source"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// IsPremium resolves the record at the given instant. Lifetime and
// redemption-code grants ignore ExpiresAt and only lose premium when
// cancelled; every other premium tier needs an active status and an
// unexpired (or open-ended) term.
func (s *SubscriptionRecord) IsPremium(now time.Time) bool {
	if s == nil || s.Tier == TierFree || s.Tier == "" {
		return false
	}
	if s.Tier == TierPremiumLifetime || s.Source == SourceRedemptionCode {
		return s.Status != StatusCancelled
	}
	if s.Status != StatusActive {
		return false
	}
	return s.ExpiresAt == nil || s.ExpiresAt.After(now)
}

type RedemptionCode struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Tier      Tier      `json:"tier"`
	MaxUses   int       `json:"max_uses"`
	Uses      int       `json:"uses"`
	CreatedAt time.Time `json:"created_at"`
}
