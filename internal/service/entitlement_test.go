package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

func TestCheckAccessFreeLimit(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)

	for i := 0; i < 3; i++ {
		d, err := e.gate.CheckAccess(ctx, uid, "bible_chat")
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !d.HasAccess || d.Reason != service.ReasonWithinFreeLimit || *d.CurrentUsage != i || *d.Limit != 3 {
			t.Fatalf("check %d: decision = %+v", i, d)
		}
		if err := e.gate.IncrementUsage(ctx, uid, "bible_chat"); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	d, err := e.gate.CheckAccess(ctx, uid, "bible_chat")
	if err != nil {
		t.Fatalf("check at limit: %v", err)
	}
	if d.HasAccess || d.Reason != service.ReasonLimitReached || *d.CurrentUsage != 3 {
		t.Fatalf("at limit: decision = %+v", d)
	}
	if err := e.gate.IncrementUsage(ctx, uid, "bible_chat"); !errors.Is(err, service.ErrLimitReached) {
		t.Fatalf("increment past limit: err = %v", err)
	}

	e.clock.Advance(24 * time.Hour)
	d, err = e.gate.CheckAccess(ctx, uid, "bible_chat")
	if err != nil {
		t.Fatalf("check next day: %v", err)
	}
	if !d.HasAccess || *d.CurrentUsage != 0 {
		t.Fatalf("next day: decision = %+v", d)
	}
}

func TestCheckAccessReasons(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	free := e.user(t, 1)
	paid := e.user(t, 2)
	e.premium(t, paid)

	cases := []struct {
		name    string
		userID  int64
		feature string
		access  bool
		reason  service.AccessReason
	}{
		{"free feature", free, "daily_training", true, service.ReasonFreeFeature},
		{"free feature case folded", free, " Daily_Training ", true, service.ReasonFreeFeature},
		{"premium only for free user", free, "advanced_stats", false, service.ReasonPremiumRequired},
		{"unknown feature for free user", free, "time_travel", false, service.ReasonPremiumRequired},
		{"premium user limited feature", paid, "bible_chat", true, service.ReasonPremiumUser},
		{"premium user premium feature", paid, "advanced_stats", true, service.ReasonPremiumUser},
		{"premium user unknown feature", paid, "time_travel", true, service.ReasonPremiumUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := e.gate.CheckAccess(ctx, tc.userID, tc.feature)
			if err != nil {
				t.Fatalf("check: %v", err)
			}
			if d.HasAccess != tc.access || d.Reason != tc.reason {
				t.Fatalf("decision = %+v, want %v/%s", d, tc.access, tc.reason)
			}
		})
	}

	if _, err := e.gate.CheckAccess(ctx, 0, "bible_chat"); !errors.Is(err, service.ErrNotAuthenticated) {
		t.Fatalf("anonymous: err = %v", err)
	}
}

func TestIncrementUsageSkipsUncounted(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	free := e.user(t, 1)
	paid := e.user(t, 2)
	e.premium(t, paid)

	for i := 0; i < 10; i++ {
		if err := e.gate.IncrementUsage(ctx, paid, "bible_chat"); err != nil {
			t.Fatalf("premium increment: %v", err)
		}
		if err := e.gate.IncrementUsage(ctx, free, "daily_training"); err != nil {
			t.Fatalf("free feature increment: %v", err)
		}
	}
	count, err := e.store.Usage().Count(ctx, paid, "bible_chat", day(0))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("premium usage counted: %d", count)
	}
	if err := e.gate.IncrementUsage(ctx, free, "advanced_stats"); !errors.Is(err, service.ErrPremiumRequired) {
		t.Fatalf("premium feature increment: err = %v", err)
	}
	if err := e.gate.IncrementUsage(ctx, free, "time_travel"); !errors.Is(err, service.ErrPremiumRequired) {
		t.Fatalf("unknown feature increment: err = %v", err)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		limited int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.gate.IncrementUsage(ctx, uid, "bible_chat")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, service.ErrLimitReached):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ok != 3 || limited != 7 {
		t.Fatalf("ok = %d, limited = %d", ok, limited)
	}
}

func TestLifetimeLimitSpansDays(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	for i := 0; i < 5; i++ {
		if err := e.gate.IncrementUsage(ctx, uid, "follow"); err != nil {
			t.Fatalf("follow %d: %v", i, err)
		}
		e.clock.Advance(48 * time.Hour)
	}
	if err := e.gate.IncrementUsage(ctx, uid, "follow"); !errors.Is(err, service.ErrLimitReached) {
		t.Fatalf("sixth follow: err = %v", err)
	}
}

func TestExpiredSubscriptionLosesPremium(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	expires := epoch.Add(time.Hour)
	if _, err := e.subs.Set(ctx, models.SubscriptionRecord{
		UserID:    uid,
		Tier:      models.TierPremiumMonthly,
		ExpiresAt: &expires,
		Source:    models.SourceSubscription,
	}); err != nil {
		t.Fatalf("set: %v", err)
	}
	d, _ := e.gate.CheckAccess(ctx, uid, "advanced_stats")
	if !d.HasAccess {
		t.Fatalf("before expiry: %+v", d)
	}
	e.clock.Advance(2 * time.Hour)
	d, _ = e.gate.CheckAccess(ctx, uid, "advanced_stats")
	if d.HasAccess || d.Reason != service.ReasonPremiumRequired {
		t.Fatalf("after expiry: %+v", d)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 3, 11, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("UTC+9", 9*3600)
	cases := []struct {
		period models.UsagePeriod
		loc    *time.Location
		want   time.Time
	}{
		{models.PeriodDaily, time.UTC, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{models.PeriodDaily, tokyo, time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)},
		{models.PeriodWeekly, time.UTC, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)},
		{models.PeriodMonthly, time.UTC, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{models.PeriodLifetime, time.UTC, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(string(tc.period)+"/"+tc.loc.String(), func(t *testing.T) {
			if got := service.PeriodStart(tc.period, now, tc.loc); !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewFeaturePolicyRejects(t *testing.T) {
	cases := []struct {
		name  string
		rules []service.FeatureRule
	}{
		{"empty name", []service.FeatureRule{{Name: " "}}},
		{"negative limit", []service.FeatureRule{{Name: "a", Limit: -1}}},
		{"bad period", []service.FeatureRule{{Name: "a", Limit: 1, Period: "hourly"}}},
		{"duplicate", []service.FeatureRule{{Name: "a"}, {Name: "A"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.NewFeaturePolicy(tc.rules); !errors.Is(err, service.ErrInvalidInput) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
