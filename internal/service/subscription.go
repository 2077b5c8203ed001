package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

type SubscriptionService struct {
	store Store
	cache SubscriptionInvalidator
	clock clockwork.Clock
	hub   *StateHub
	log   *slog.Logger
}

func NewSubscriptionService(store Store, cache SubscriptionInvalidator, clock clockwork.Clock, hub *StateHub, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{store: store, cache: cache, clock: clock, hub: hub, log: log}
}

// Get returns the stored record, or a free-tier record when none exists.
func (s *SubscriptionService) Get(ctx context.Context, userID int64) (*models.SubscriptionRecord, error) {
	rec, err := s.store.Subscriptions().Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if rec == nil {
		rec = &models.SubscriptionRecord{UserID: userID, Tier: models.TierFree, Status: models.StatusActive, Source: models.SourceSubscription}
	}
	return rec, nil
}

func (s *SubscriptionService) IsPremium(ctx context.Context, userID int64) (bool, error) {
	rec, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec.IsPremium(s.clock.Now()), nil
}

// Set stores a subscription coming from billing or an admin grant.
func (s *SubscriptionService) Set(ctx context.Context, rec models.SubscriptionRecord) (*models.SubscriptionRecord, error) {
	if rec.UserID <= 0 {
		return nil, fmt.Errorf("user id is required: %w", ErrInvalidInput)
	}
	if !rec.Tier.Valid() {
		return nil, fmt.Errorf("tier %q: %w", rec.Tier, ErrInvalidInput)
	}
	switch rec.Status {
	case models.StatusActive, models.StatusCancelled, models.StatusExpired, models.StatusTrialing:
	case "":
		rec.Status = models.StatusActive
	default:
		return nil, fmt.Errorf("status %q: %w", rec.Status, ErrInvalidInput)
	}
	switch rec.Source {
	case models.SourceSubscription, models.SourceRedemptionCode, models.SourcePromo, models.SourceAdminGrant:
	case "":
		rec.Source = models.SourceAdminGrant
	default:
		return nil, fmt.Errorf("source %q: %w", rec.Source, ErrInvalidInput)
	}
	rec.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.Subscriptions().Upsert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	s.changed(ctx, &rec)
	s.log.Info("subscription updated", "user", rec.UserID, "tier", rec.Tier, "status", rec.Status, "source", rec.Source)
	return &rec, nil
}

func (s *SubscriptionService) changed(ctx context.Context, rec *models.SubscriptionRecord) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, rec.UserID)
	}
	s.hub.Publish(StateChange{UserID: rec.UserID, Topic: TopicSubscription, Payload: rec})
}
