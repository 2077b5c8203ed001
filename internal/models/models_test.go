package models

import (
	"testing"
	"time"
)

func TestSubscriptionIsPremium(t *testing.T) {
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name string
		rec  *SubscriptionRecord
		want bool
	}{
		{"nil record", nil, false},
		{"free tier", &SubscriptionRecord{Tier: TierFree, Status: StatusActive}, false},
		{"monthly open ended", &SubscriptionRecord{Tier: TierPremiumMonthly, Status: StatusActive}, true},
		{"monthly unexpired", &SubscriptionRecord{Tier: TierPremiumMonthly, Status: StatusActive, ExpiresAt: &future}, true},
		{"monthly expired", &SubscriptionRecord{Tier: TierPremiumMonthly, Status: StatusActive, ExpiresAt: &past}, false},
		{"annual cancelled", &SubscriptionRecord{Tier: TierPremiumAnnual, Status: StatusCancelled, ExpiresAt: &future}, false},
		{"annual trialing", &SubscriptionRecord{Tier: TierPremiumAnnual, Status: StatusTrialing, ExpiresAt: &future}, false},
		{"lifetime ignores expiry", &SubscriptionRecord{Tier: TierPremiumLifetime, Status: StatusActive, ExpiresAt: &past}, true},
		{"lifetime cancelled", &SubscriptionRecord{Tier: TierPremiumLifetime, Status: StatusCancelled}, false},
		{"code grant ignores expiry", &SubscriptionRecord{Tier: TierPremiumMonthly, Status: StatusExpired, Source: SourceRedemptionCode, ExpiresAt: &past}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.IsPremium(now); got != tc.want {
				t.Fatalf("IsPremium = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBoosterIsActive(t *testing.T) {
	now := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)
	zero, two := 0, 2

	cases := []struct {
		name string
		b    ActiveBooster
		want bool
	}{
		{"open", ActiveBooster{}, true},
		{"window running", ActiveBooster{ExpiresAt: &later}, true},
		{"window ends now", ActiveBooster{ExpiresAt: &now}, false},
		{"pool left", ActiveBooster{UsesRemaining: &two}, true},
		{"pool empty", ActiveBooster{UsesRemaining: &zero}, false},
	}
	for _, tc := range cases {
		if got := tc.b.IsActive(now); got != tc.want {
			t.Errorf("%s: IsActive = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRewardStockExhausted(t *testing.T) {
	limit := 2
	r := Reward{StockLimit: &limit, TimesRedeemed: 1}
	if r.StockExhausted() {
		t.Fatal("one unit left")
	}
	r.TimesRedeemed = 2
	if !r.StockExhausted() {
		t.Fatal("stock should be exhausted")
	}
	unlimited := Reward{TimesRedeemed: 1000}
	if unlimited.StockExhausted() {
		t.Fatal("unlimited reward exhausted")
	}
}
