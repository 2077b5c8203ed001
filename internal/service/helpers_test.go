package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/memstore"
	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
	"github.com/digkill/faithtrain/pkg/logger"
)

var epoch = time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)

type engine struct {
	clock       *clockwork.FakeClock
	store       *memstore.Store
	hub         *service.StateHub
	users       *service.UserService
	boosters    *service.BoosterManager
	ledger      *service.PointsLedger
	streaks     *service.StreakService
	training    *service.TrainingService
	catalog     *service.CatalogService
	redemptions *service.RedemptionService
	gate        *service.EntitlementGate
	codes       *service.CodeService
	subs        *service.SubscriptionService
	prefs       *service.PreferenceService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineWithPolicy(t, service.StreakPolicy{})
}

func newEngineWithPolicy(t *testing.T, policy service.StreakPolicy) *engine {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	store := memstore.New(clock)
	hub := service.NewStateHub()
	log := logger.Discard()

	features, err := service.NewFeaturePolicy([]service.FeatureRule{
		{Name: "daily_training", Free: true},
		{Name: "bible_chat", Limit: 3, Period: models.PeriodDaily},
		{Name: "follow", Limit: 5, Period: models.PeriodLifetime},
		{Name: "advanced_stats"},
	})
	if err != nil {
		t.Fatalf("feature policy: %v", err)
	}

	e := &engine{clock: clock, store: store, hub: hub}
	e.users = service.NewUserService(store)
	e.boosters = service.NewBoosterManager(store, clock, hub, log)
	e.ledger = service.NewPointsLedger(store, e.boosters, hub, log)
	e.streaks = service.NewStreakService(store, e.boosters, clock, time.UTC, policy, hub, log)
	e.training = service.NewTrainingService(store, e.streaks, e.ledger, 10, log)
	e.catalog = service.NewCatalogService(store)
	e.redemptions = service.NewRedemptionService(store, e.ledger, clock, hub, log)
	e.gate = service.NewEntitlementGate(store, nil, features, clock, time.UTC, hub, log)
	e.codes = service.NewCodeService(store, nil, "FT", clock, hub, log)
	e.subs = service.NewSubscriptionService(store, nil, clock, hub, log)
	e.prefs = service.NewPreferenceService(store)
	return e
}

func (e *engine) user(t *testing.T, telegramID int64) int64 {
	t.Helper()
	u, _, err := e.users.Ensure(context.Background(), telegramID, "user", "User")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	return u.ID
}

func (e *engine) fund(t *testing.T, userID, amount int64) {
	t.Helper()
	if _, err := e.ledger.Credit(context.Background(), userID, amount, "test"); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (e *engine) reward(t *testing.T, in service.CreateRewardInput) *models.Reward {
	t.Helper()
	r, err := e.catalog.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	return r
}

func (e *engine) premium(t *testing.T, userID int64) {
	t.Helper()
	_, err := e.subs.Set(context.Background(), models.SubscriptionRecord{
		UserID: userID,
		Tier:   models.TierPremiumLifetime,
		Status: models.StatusActive,
	})
	if err != nil {
		t.Fatalf("set subscription: %v", err)
	}
}

func intPtr(v int) *int { return &v }

func day(offset int) time.Time {
	return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}
