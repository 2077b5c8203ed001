package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

// BoosterGrant describes what an activation adds: a time window, a use
// pool, or both.
type BoosterGrant struct {
	Duration      time.Duration
	Uses          int
	SourceGrantID string
}

type ActivateResult struct {
	Booster   *models.ActiveBooster
	ExpiresAt *time.Time
}

// BoosterManager tracks time- and use-bounded effects. Expiry is decided at
// read time against the clock; nothing sweeps old rows.
type BoosterManager struct {
	store Store
	clock clockwork.Clock
	hub   *StateHub
	log   *slog.Logger
}

func NewBoosterManager(store Store, clock clockwork.Clock, hub *StateHub, log *slog.Logger) *BoosterManager {
	return &BoosterManager{store: store, clock: clock, hub: hub, log: log}
}

func (m *BoosterManager) Activate(ctx context.Context, userID int64, kind models.EffectKind, grant BoosterGrant) (*models.ActiveBooster, error) {
	var out *models.ActiveBooster
	err := m.store.InTx(ctx, func(tx Store) error {
		b, err := m.activate(ctx, tx, userID, kind, grant)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	m.hub.Publish(StateChange{UserID: userID, Topic: TopicBoosters, Payload: out})
	return out, nil
}

// activate stacks onto an existing active instance: use pools accumulate,
// time windows keep the later expiry.
func (m *BoosterManager) activate(ctx context.Context, tx Store, userID int64, kind models.EffectKind, grant BoosterGrant) (*models.ActiveBooster, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("effect %q: %w", kind, ErrInvalidInput)
	}
	if grant.Duration <= 0 && grant.Uses <= 0 {
		return nil, fmt.Errorf("booster needs a duration or uses: %w", ErrInvalidInput)
	}
	now := m.clock.Now().UTC()

	active, err := tx.Boosters().ListActive(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list boosters: %w", err)
	}
	var existing *models.ActiveBooster
	for i := range active {
		if active[i].Kind == kind && active[i].IsActive(now) && sameShape(&active[i], grant) {
			existing = &active[i]
			break
		}
	}

	var expiresAt *time.Time
	if grant.Duration > 0 {
		t := now.Add(grant.Duration)
		expiresAt = &t
	}

	if existing != nil {
		if expiresAt != nil && existing.ExpiresAt != nil && expiresAt.After(*existing.ExpiresAt) {
			if err := tx.Boosters().ExtendUntil(ctx, existing.ID, *expiresAt); err != nil {
				return nil, fmt.Errorf("extend booster: %w", err)
			}
			existing.ExpiresAt = expiresAt
		}
		if grant.Uses > 0 && existing.UsesRemaining != nil {
			if err := tx.Boosters().AddUses(ctx, existing.ID, grant.Uses); err != nil {
				return nil, fmt.Errorf("add booster uses: %w", err)
			}
			total := *existing.UsesRemaining + grant.Uses
			existing.UsesRemaining = &total
		}
		existing.UpdatedAt = now
		return existing, nil
	}

	b := &models.ActiveBooster{
		ID:            uuid.NewString(),
		UserID:        userID,
		Kind:          kind,
		ExpiresAt:     expiresAt,
		SourceGrantID: grant.SourceGrantID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if grant.Uses > 0 {
		uses := grant.Uses
		b.UsesRemaining = &uses
	}
	if err := tx.Boosters().Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booster: %w", err)
	}
	m.log.Info("booster activated", "user", userID, "kind", kind, "id", b.ID)
	return b, nil
}

// sameShape reports whether the grant can be folded into b: a time window
// folds into a time window, a use pool into a use pool.
func sameShape(b *models.ActiveBooster, grant BoosterGrant) bool {
	timed := grant.Duration > 0
	pooled := grant.Uses > 0
	return timed == (b.ExpiresAt != nil) && pooled == (b.UsesRemaining != nil)
}

func (m *BoosterManager) IsActive(ctx context.Context, userID int64, kind models.EffectKind) (bool, error) {
	return m.isActive(ctx, m.store, userID, kind)
}

func (m *BoosterManager) isActive(ctx context.Context, st Store, userID int64, kind models.EffectKind) (bool, error) {
	b, err := st.Boosters().FindActive(ctx, userID, kind, m.clock.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("find active booster: %w", err)
	}
	return b != nil && b.IsActive(m.clock.Now().UTC()), nil
}

// ConsumeUse takes one use from an active use-bounded instance of kind.
func (m *BoosterManager) ConsumeUse(ctx context.Context, userID int64, kind models.EffectKind) (bool, error) {
	var ok bool
	err := m.store.InTx(ctx, func(tx Store) error {
		var err error
		ok, err = m.consumeUse(ctx, tx, userID, kind)
		return err
	})
	if err != nil {
		return false, err
	}
	if ok {
		m.hub.Publish(StateChange{UserID: userID, Topic: TopicBoosters})
	}
	return ok, nil
}

func (m *BoosterManager) consumeUse(ctx context.Context, tx Store, userID int64, kind models.EffectKind) (bool, error) {
	now := m.clock.Now().UTC()
	active, err := tx.Boosters().ListActive(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("list boosters: %w", err)
	}
	for _, b := range active {
		if b.Kind != kind || b.UsesRemaining == nil || !b.IsActive(now) {
			continue
		}
		ok, err := tx.Boosters().ConsumeUse(ctx, b.ID)
		if err != nil {
			return false, fmt.Errorf("consume booster use: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// FreezeTokens is the number of streak-freeze uses currently available.
func (m *BoosterManager) FreezeTokens(ctx context.Context, userID int64) (int, error) {
	return m.freezeTokens(ctx, m.store, userID)
}

func (m *BoosterManager) freezeTokens(ctx context.Context, st Store, userID int64) (int, error) {
	now := m.clock.Now().UTC()
	active, err := st.Boosters().ListActive(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("list boosters: %w", err)
	}
	total := 0
	for _, b := range active {
		if b.Kind == models.EffectStreakFreeze && b.UsesRemaining != nil && b.IsActive(now) {
			total += *b.UsesRemaining
		}
	}
	return total, nil
}

func (m *BoosterManager) List(ctx context.Context, userID int64) ([]models.ActiveBooster, error) {
	now := m.clock.Now().UTC()
	active, err := m.store.Boosters().ListActive(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list boosters: %w", err)
	}
	out := active[:0]
	for _, b := range active {
		if b.IsActive(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

// ActivateGrant turns an owned booster reward into a running effect. The
// grant is marked activated in the same unit so it cannot be spent twice.
func (m *BoosterManager) ActivateGrant(ctx context.Context, userID int64, grantID string) (*ActivateResult, error) {
	var out *ActivateResult
	err := m.store.InTx(ctx, func(tx Store) error {
		grant, err := tx.Rewards().LockGrant(ctx, grantID)
		if err != nil {
			return fmt.Errorf("lock grant: %w", err)
		}
		if grant == nil || grant.UserID != userID {
			return ErrGrantNotFound
		}
		if grant.ActivatedAt != nil {
			return ErrAlreadyActivated
		}
		reward, err := tx.Rewards().GetByID(ctx, grant.RewardID)
		if err != nil {
			return fmt.Errorf("get reward: %w", err)
		}
		if reward == nil {
			return ErrRewardNotFound
		}
		if reward.Category != models.RewardBooster || !reward.EffectKind.Valid() {
			return ErrNotBooster
		}
		marked, err := tx.Rewards().MarkActivated(ctx, grant.ID, m.clock.Now().UTC())
		if err != nil {
			return fmt.Errorf("mark grant activated: %w", err)
		}
		if !marked {
			return ErrAlreadyActivated
		}
		b, err := m.activate(ctx, tx, userID, reward.EffectKind, BoosterGrant{
			Duration:      time.Duration(reward.EffectMinutes) * time.Minute,
			Uses:          reward.EffectUses,
			SourceGrantID: grant.ID,
		})
		if err != nil {
			return err
		}
		out = &ActivateResult{Booster: b, ExpiresAt: b.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.hub.Publish(StateChange{UserID: userID, Topic: TopicBoosters, Payload: out.Booster})
	return out, nil
}
