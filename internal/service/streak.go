package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/digkill/faithtrain/internal/models"
)

// StreakPolicy controls how freeze tokens bridge gaps.
type StreakPolicy struct {
	// MultiDayBridge lets a gap of several missed days be bridged by
	// spending one token per missed day. When false a token only covers a
	// gap of exactly one missed day.
	MultiDayBridge bool
}

type StreakInput struct {
	Dates           []time.Time
	Today           time.Time
	FreezeTokens    int
	Bridged         []time.Time
	PreviousLongest int
	Policy          StreakPolicy
}

type StreakResult struct {
	Current              int
	Longest              int
	ActiveToday          bool
	LastActive           *time.Time
	FreezeTokensConsumed int
	NewlyBridged         []time.Time
}

// EvaluateStreak derives the streak from the activity days. All times are
// reduced to their calendar date; callers pass dates already expressed in
// the user's day boundary.
func EvaluateStreak(in StreakInput) StreakResult {
	days := distinctDaysDesc(in.Dates)
	today := civilDay(in.Today)
	res := StreakResult{Longest: in.PreviousLongest}

	if len(days) == 0 {
		return res
	}
	last := days[0]
	res.LastActive = &last
	res.ActiveToday = last.Equal(today)

	if lead := daysBetween(last, today); lead != 0 && lead != 1 {
		return res
	}

	bridged := make(map[time.Time]struct{}, len(in.Bridged))
	for _, d := range in.Bridged {
		bridged[civilDay(d)] = struct{}{}
	}
	tokens := in.FreezeTokens

	res.Current = 1
	for i := 1; i < len(days); i++ {
		gap := daysBetween(days[i], days[i-1])
		if gap == 1 {
			res.Current++
			continue
		}
		missed := gap - 1
		if missed > 1 && !in.Policy.MultiDayBridge {
			break
		}
		var need []time.Time
		for m := 1; m <= missed; m++ {
			d := days[i-1].AddDate(0, 0, -m)
			if _, ok := bridged[d]; !ok {
				need = append(need, d)
			}
		}
		if len(need) > tokens {
			break
		}
		tokens -= len(need)
		res.FreezeTokensConsumed += len(need)
		res.NewlyBridged = append(res.NewlyBridged, need...)
		res.Current++
	}

	if res.Current > res.Longest {
		res.Longest = res.Current
	}
	return res
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayIn returns the calendar date of t as observed in loc.
func dayIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return civilDay(t.In(loc))
}

func daysBetween(earlier, later time.Time) int {
	return int(later.Sub(earlier).Hours() / 24)
}

func distinctDaysDesc(dates []time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := civilDay(d)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}

type StreakService struct {
	store    Store
	boosters *BoosterManager
	clock    clockwork.Clock
	loc      *time.Location
	policy   StreakPolicy
	hub      *StateHub
	log      *slog.Logger
}

func NewStreakService(store Store, boosters *BoosterManager, clock clockwork.Clock, loc *time.Location, policy StreakPolicy, hub *StateHub, log *slog.Logger) *StreakService {
	if loc == nil {
		loc = time.UTC
	}
	return &StreakService{
		store:    store,
		boosters: boosters,
		clock:    clock,
		loc:      loc,
		policy:   policy,
		hub:      hub,
		log:      log,
	}
}

// Today is the current calendar day in the configured location.
func (s *StreakService) Today() time.Time {
	return dayIn(s.clock.Now(), s.loc)
}

// Get evaluates the streak against today without spending freeze tokens.
// Days bridged by an earlier Refresh still count; an open gap breaks the
// streak in the view until Refresh covers it.
func (s *StreakService) Get(ctx context.Context, userID int64) (*models.StreakState, error) {
	streaks := s.store.Streaks()
	state, err := streaks.GetState(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get streak: %w", err)
	}
	if state == nil {
		state = &models.StreakState{UserID: userID}
	}
	days, err := streaks.ActivityDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load activity days: %w", err)
	}
	bridged, err := streaks.BridgedDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bridged days: %w", err)
	}
	res := EvaluateStreak(StreakInput{
		Dates:           days,
		Today:           s.Today(),
		Bridged:         bridged,
		PreviousLongest: state.LongestStreak,
		Policy:          s.policy,
	})
	view := *state
	view.CurrentStreak = res.Current
	view.LongestStreak = res.Longest
	view.LastActiveDate = res.LastActive
	view.ActiveToday = res.ActiveToday
	return &view, nil
}

// Refresh re-evaluates the streak, spends freeze tokens on newly bridged
// gaps and persists the result. Gaps bridged by a previous run are not
// charged again.
func (s *StreakService) Refresh(ctx context.Context, userID int64) (*models.StreakState, error) {
	var out *models.StreakState
	err := s.store.InTx(ctx, func(tx Store) error {
		days, err := tx.Streaks().ActivityDays(ctx, userID)
		if err != nil {
			return fmt.Errorf("load activity days: %w", err)
		}
		bridged, err := tx.Streaks().BridgedDays(ctx, userID)
		if err != nil {
			return fmt.Errorf("load bridged days: %w", err)
		}
		prev, err := tx.Streaks().GetState(ctx, userID)
		if err != nil {
			return fmt.Errorf("load streak state: %w", err)
		}
		if prev == nil {
			prev = &models.StreakState{UserID: userID}
		}
		tokens, err := s.boosters.freezeTokens(ctx, tx, userID)
		if err != nil {
			return err
		}

		res := EvaluateStreak(StreakInput{
			Dates:           days,
			Today:           s.Today(),
			FreezeTokens:    tokens,
			Bridged:         bridged,
			PreviousLongest: prev.LongestStreak,
			Policy:          s.policy,
		})

		for _, day := range res.NewlyBridged {
			recorded, err := tx.Streaks().RecordBridge(ctx, userID, day)
			if err != nil {
				return fmt.Errorf("record bridge: %w", err)
			}
			if !recorded {
				continue
			}
			ok, err := s.boosters.consumeUse(ctx, tx, userID, models.EffectStreakFreeze)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("freeze token vanished during refresh: %w", ErrTransient)
			}
		}

		state := &models.StreakState{
			UserID:         userID,
			CurrentStreak:  res.Current,
			LongestStreak:  res.Longest,
			LastActiveDate: res.LastActive,
			ActiveToday:    res.ActiveToday,
			UpdatedAt:      s.clock.Now().UTC(),
		}
		if err := tx.Streaks().SaveState(ctx, state); err != nil {
			return fmt.Errorf("save streak state: %w", err)
		}
		if res.FreezeTokensConsumed > 0 {
			s.log.Info("streak protected by freeze", "user", userID, "tokens", res.FreezeTokensConsumed)
		}
		out = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.hub.Publish(StateChange{UserID: userID, Topic: TopicStreak, Payload: out})
	return out, nil
}
