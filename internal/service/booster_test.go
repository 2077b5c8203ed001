package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

func TestActivateStacks(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)

	first, err := e.boosters.Activate(ctx, uid, models.EffectStreakFreeze, service.BoosterGrant{Uses: 2})
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	second, err := e.boosters.Activate(ctx, uid, models.EffectStreakFreeze, service.BoosterGrant{Uses: 3})
	if err != nil {
		t.Fatalf("activate again: %v", err)
	}
	if second.ID != first.ID || *second.UsesRemaining != 5 {
		t.Fatalf("stacked = %+v", second)
	}
	tokens, _ := e.boosters.FreezeTokens(ctx, uid)
	if tokens != 5 {
		t.Fatalf("tokens = %d, want 5", tokens)
	}

	window, err := e.boosters.Activate(ctx, uid, models.EffectDoublePoints, service.BoosterGrant{Duration: time.Hour})
	if err != nil {
		t.Fatalf("activate window: %v", err)
	}
	e.clock.Advance(30 * time.Minute)
	longer, err := e.boosters.Activate(ctx, uid, models.EffectDoublePoints, service.BoosterGrant{Duration: time.Hour})
	if err != nil {
		t.Fatalf("extend window: %v", err)
	}
	if longer.ID != window.ID || !longer.ExpiresAt.Equal(epoch.Add(90*time.Minute)) {
		t.Fatalf("extended = %+v", longer)
	}
	shorter, err := e.boosters.Activate(ctx, uid, models.EffectDoublePoints, service.BoosterGrant{Duration: time.Minute})
	if err != nil {
		t.Fatalf("short window: %v", err)
	}
	if !shorter.ExpiresAt.Equal(epoch.Add(90 * time.Minute)) {
		t.Fatalf("shorter grant moved expiry to %v", shorter.ExpiresAt)
	}

	list, err := e.boosters.List(ctx, uid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("active boosters = %d, want 2", len(list))
	}
}

func TestActivateRejectsBadGrant(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	if _, err := e.boosters.Activate(ctx, uid, "jetpack", service.BoosterGrant{Uses: 1}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("bad kind: err = %v", err)
	}
	if _, err := e.boosters.Activate(ctx, uid, models.EffectDoublePoints, service.BoosterGrant{}); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("empty grant: err = %v", err)
	}
}

func TestConsumeUse(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	if _, err := e.boosters.Activate(ctx, uid, models.EffectStreakFreeze, service.BoosterGrant{Uses: 1}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	ok, err := e.boosters.ConsumeUse(ctx, uid, models.EffectStreakFreeze)
	if err != nil || !ok {
		t.Fatalf("first consume = %v, %v", ok, err)
	}
	ok, err = e.boosters.ConsumeUse(ctx, uid, models.EffectStreakFreeze)
	if err != nil || ok {
		t.Fatalf("second consume = %v, %v", ok, err)
	}
	active, _ := e.boosters.IsActive(ctx, uid, models.EffectStreakFreeze)
	if active {
		t.Fatal("empty pool still active")
	}
}

func TestActivateGrant(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	e.fund(t, uid, 100)

	boost := e.reward(t, service.CreateRewardInput{
		Title:         "Double Hour",
		Cost:          40,
		Category:      models.RewardBooster,
		EffectKind:    models.EffectDoublePoints,
		EffectMinutes: 60,
	})
	cosmetic := e.reward(t, service.CreateRewardInput{Title: "Frame", Cost: 10})

	redeemed, err := e.redemptions.Redeem(ctx, uid, boost.ID)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	res, err := e.boosters.ActivateGrant(ctx, uid, redeemed.Grant.ID)
	if err != nil {
		t.Fatalf("activate grant: %v", err)
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("expires at = %v", res.ExpiresAt)
	}
	if res.Booster.SourceGrantID != redeemed.Grant.ID {
		t.Fatalf("source grant = %q", res.Booster.SourceGrantID)
	}
	if _, err := e.boosters.ActivateGrant(ctx, uid, redeemed.Grant.ID); !errors.Is(err, service.ErrAlreadyActivated) {
		t.Fatalf("second activation: err = %v", err)
	}

	credit, err := e.ledger.Credit(ctx, uid, 10, "session")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if credit.Applied != 20 {
		t.Fatalf("applied = %d, want doubled 20", credit.Applied)
	}

	plain, err := e.redemptions.Redeem(ctx, uid, cosmetic.ID)
	if err != nil {
		t.Fatalf("redeem cosmetic: %v", err)
	}
	if _, err := e.boosters.ActivateGrant(ctx, uid, plain.Grant.ID); !errors.Is(err, service.ErrNotBooster) {
		t.Fatalf("cosmetic activation: err = %v", err)
	}
	if _, err := e.boosters.ActivateGrant(ctx, uid, "missing"); !errors.Is(err, service.ErrGrantNotFound) {
		t.Fatalf("missing grant: err = %v", err)
	}
	other := e.user(t, 2)
	if _, err := e.boosters.ActivateGrant(ctx, other, redeemed.Grant.ID); !errors.Is(err, service.ErrGrantNotFound) {
		t.Fatalf("foreign grant: err = %v", err)
	}
}
