package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

const (
	DefaultCodePrefix = "FT"
	codeSuffixLen     = 6
	codeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var codeSuffix = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// NormalizeCode upper-cases raw and checks the PP-XXXXXX shape against
// prefix. It never touches the store.
func NormalizeCode(raw, prefix string) (string, error) {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	prefix = strings.ToUpper(prefix)
	code := strings.ToUpper(strings.TrimSpace(raw))
	head, tail, ok := strings.Cut(code, "-")
	if !ok || head != prefix || !codeSuffix.MatchString(tail) {
		return "", ErrInvalidCodeFormat
	}
	return code, nil
}

type CodeService struct {
	store  Store
	cache  SubscriptionInvalidator
	prefix string
	clock  clockwork.Clock
	hub    *StateHub
	log    *slog.Logger
}

func NewCodeService(store Store, cache SubscriptionInvalidator, prefix string, clock clockwork.Clock, hub *StateHub, log *slog.Logger) *CodeService {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	return &CodeService{store: store, cache: cache, prefix: strings.ToUpper(prefix), clock: clock, hub: hub, log: log}
}

// Redeem applies a redemption code: one use per user, bounded by the
// code's max uses, and grants non-expiring premium of the code's tier.
func (s *CodeService) Redeem(ctx context.Context, userID int64, raw string) (*models.SubscriptionRecord, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	code, err := NormalizeCode(raw, s.prefix)
	if err != nil {
		return nil, err
	}

	var rec *models.SubscriptionRecord
	err = s.store.InTx(ctx, func(tx Store) error {
		c, err := tx.Codes().Lock(ctx, code)
		if err != nil {
			return fmt.Errorf("lock code: %w", err)
		}
		if c == nil {
			return ErrCodeNotFound
		}
		recorded, err := tx.Codes().RecordRedemption(ctx, userID, c.ID)
		if err != nil {
			return fmt.Errorf("record redemption: %w", err)
		}
		if !recorded {
			return ErrAlreadyRedeemed
		}
		if c.Uses >= c.MaxUses {
			return ErrCodeExhausted
		}
		ok, err := tx.Codes().IncrementUses(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("increment code uses: %w", err)
		}
		if !ok {
			return ErrCodeExhausted
		}
		tier := c.Tier
		if tier == "" || tier == models.TierFree {
			tier = models.TierPremiumLifetime
		}
		rec = &models.SubscriptionRecord{
			UserID:    userID,
			Tier:      tier,
			Status:    models.StatusActive,
			Source:    models.SourceRedemptionCode,
			UpdatedAt: s.clock.Now().UTC(),
		}
		if err := tx.Subscriptions().Upsert(ctx, rec); err != nil {
			return fmt.Errorf("grant subscription: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}
	s.log.Info("redemption code applied", "user", userID, "tier", rec.Tier)
	s.hub.Publish(StateChange{UserID: userID, Topic: TopicSubscription, Payload: rec})
	return rec, nil
}

// Generate creates a new code with a random suffix.
func (s *CodeService) Generate(ctx context.Context, tier models.Tier, maxUses int) (*models.RedemptionCode, error) {
	if maxUses <= 0 {
		return nil, fmt.Errorf("max uses must be positive: %w", ErrInvalidInput)
	}
	if tier == "" {
		tier = models.TierPremiumLifetime
	}
	if !tier.Valid() || tier == models.TierFree {
		return nil, fmt.Errorf("tier %q: %w", tier, ErrInvalidInput)
	}
	suffix, err := randomSuffix()
	if err != nil {
		return nil, err
	}
	created, err := s.store.Codes().Create(ctx, &models.RedemptionCode{
		Code:    s.prefix + "-" + suffix,
		Tier:    tier,
		MaxUses: maxUses,
	})
	if err != nil {
		return nil, fmt.Errorf("create code: %w", err)
	}
	return created, nil
}

func (s *CodeService) List(ctx context.Context) ([]models.RedemptionCode, error) {
	codes, err := s.store.Codes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return codes, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, codeSuffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}
