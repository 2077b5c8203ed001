package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

type AccessReason string

const (
	ReasonFreeFeature     AccessReason = "free_feature"
	ReasonPremiumUser     AccessReason = "premium_user"
	ReasonWithinFreeLimit AccessReason = "within_free_limit"
	ReasonLimitReached    AccessReason = "limit_reached"
	ReasonPremiumRequired AccessReason = "premium_required"
)

type AccessDecision struct {
	HasAccess    bool         `json:"has_access"`
	Reason       AccessReason `json:"reason"`
	Limit        *int         `json:"limit,omitempty"`
	CurrentUsage *int         `json:"current_usage,omitempty"`
}

// FeatureRule is the gating policy for one feature. A non-free feature with
// Limit 0 is premium only.
type FeatureRule struct {
	Name   string
	Free   bool
	Limit  int
	Period models.UsagePeriod
}

type FeaturePolicy struct {
	rules map[string]FeatureRule
}

func NewFeaturePolicy(rules []FeatureRule) (*FeaturePolicy, error) {
	p := &FeaturePolicy{rules: make(map[string]FeatureRule, len(rules))}
	for _, r := range rules {
		r.Name = normalizeFeature(r.Name)
		if r.Name == "" {
			return nil, fmt.Errorf("feature rule without name: %w", ErrInvalidInput)
		}
		if r.Limit < 0 {
			return nil, fmt.Errorf("feature %s: negative limit: %w", r.Name, ErrInvalidInput)
		}
		switch r.Period {
		case "":
			r.Period = models.PeriodDaily
		case models.PeriodDaily, models.PeriodWeekly, models.PeriodMonthly, models.PeriodLifetime:
		default:
			return nil, fmt.Errorf("feature %s: unknown period %q: %w", r.Name, r.Period, ErrInvalidInput)
		}
		if _, dup := p.rules[r.Name]; dup {
			return nil, fmt.Errorf("feature %s declared twice: %w", r.Name, ErrInvalidInput)
		}
		p.rules[r.Name] = r
	}
	return p, nil
}

func (p *FeaturePolicy) Rule(feature string) (FeatureRule, bool) {
	r, ok := p.rules[normalizeFeature(feature)]
	return r, ok
}

func normalizeFeature(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PeriodStart is the start of the counting period containing now, as a
// calendar date in loc.
func PeriodStart(period models.UsagePeriod, now time.Time, loc *time.Location) time.Time {
	day := dayIn(now, loc)
	switch period {
	case models.PeriodWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.PeriodMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.PeriodLifetime:
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// EntitlementGate decides feature access from the subscription tier and the
// free-tier usage counters.
type EntitlementGate struct {
	store  Store
	subs   SubscriptionReader
	policy *FeaturePolicy
	clock  clockwork.Clock
	loc    *time.Location
	hub    *StateHub
	log    *slog.Logger
}

// NewEntitlementGate builds a gate. subs may be a cache in front of the
// store; a stale read only affects the advisory check.
func NewEntitlementGate(store Store, subs SubscriptionReader, policy *FeaturePolicy, clock clockwork.Clock, loc *time.Location, hub *StateHub, log *slog.Logger) *EntitlementGate {
	if subs == nil {
		subs = store.Subscriptions()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EntitlementGate{store: store, subs: subs, policy: policy, clock: clock, loc: loc, hub: hub, log: log}
}

// CheckAccess is best effort: a true answer is not a reservation, the
// authoritative check happens in IncrementUsage.
func (g *EntitlementGate) CheckAccess(ctx context.Context, userID int64, feature string) (*AccessDecision, error) {
	if userID <= 0 {
		return nil, ErrNotAuthenticated
	}
	rule, known := g.policy.Rule(feature)
	if known && rule.Free {
		return &AccessDecision{HasAccess: true, Reason: ReasonFreeFeature}, nil
	}

	premium, err := g.isPremium(ctx, g.subs, userID)
	if err != nil {
		return nil, err
	}
	if premium {
		return &AccessDecision{HasAccess: true, Reason: ReasonPremiumUser}, nil
	}

	if !known || rule.Limit == 0 {
		return &AccessDecision{HasAccess: false, Reason: ReasonPremiumRequired}, nil
	}

	now := g.clock.Now()
	count, err := g.store.Usage().Count(ctx, userID, rule.Name, PeriodStart(rule.Period, now, g.loc))
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}
	limit := rule.Limit
	if count < limit {
		return &AccessDecision{HasAccess: true, Reason: ReasonWithinFreeLimit, Limit: &limit, CurrentUsage: &count}, nil
	}
	return &AccessDecision{HasAccess: false, Reason: ReasonLimitReached, Limit: &limit, CurrentUsage: &count}, nil
}

// IncrementUsage records one use of a gated feature after the action it
// guards has succeeded. Free features and premium users are not counted.
// For free users the counter only moves while below the limit; otherwise
// ErrLimitReached is returned.
func (g *EntitlementGate) IncrementUsage(ctx context.Context, userID int64, feature string) error {
	if userID <= 0 {
		return ErrNotAuthenticated
	}
	rule, known := g.policy.Rule(feature)
	if known && rule.Free {
		return nil
	}
	premium, err := g.isPremium(ctx, g.store.Subscriptions(), userID)
	if err != nil {
		return err
	}
	if premium {
		return nil
	}
	if !known || rule.Limit == 0 {
		return ErrPremiumRequired
	}

	start := PeriodStart(rule.Period, g.clock.Now(), g.loc)
	var count int
	err = g.store.InTx(ctx, func(tx Store) error {
		c, ok, err := tx.Usage().IncrementBelow(ctx, userID, rule.Name, start, rule.Limit)
		if err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		if !ok {
			return ErrLimitReached
		}
		count = c
		return nil
	})
	if err != nil {
		return err
	}
	g.hub.Publish(StateChange{UserID: userID, Topic: TopicUsage, Payload: map[string]any{"feature": rule.Name, "count": count}})
	return nil
}

func (g *EntitlementGate) isPremium(ctx context.Context, subs SubscriptionReader, userID int64) (bool, error) {
	rec, err := subs.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("get subscription: %w", err)
	}
	return rec.IsPremium(g.clock.Now()), nil
}
