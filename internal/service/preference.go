package service

import (
	"context"
	"fmt"
	"strconv"
)

// PreferenceKey names a persisted per-user flag.
type PreferenceKey string

const (
	PrefGuidelinesDismissed PreferenceKey = "guidelines_dismissed"
	PrefTourCompleted       PreferenceKey = "tour_completed"
	PrefRemindersOptIn      PreferenceKey = "reminders_opt_in"
)

var knownPreferences = map[PreferenceKey]bool{
	PrefGuidelinesDismissed: false,
	PrefTourCompleted:       false,
	PrefRemindersOptIn:      true,
}

// ParsePreferenceKey accepts only registered keys.
func ParsePreferenceKey(raw string) (PreferenceKey, error) {
	key := PreferenceKey(raw)
	if _, ok := knownPreferences[key]; !ok {
		return "", fmt.Errorf("%s: %w", raw, ErrUnknownPreference)
	}
	return key, nil
}

type PreferenceService struct {
	store Store
}

func NewPreferenceService(store Store) *PreferenceService {
	return &PreferenceService{store: store}
}

// Get returns the stored flag or the key's default.
func (s *PreferenceService) Get(ctx context.Context, userID int64, key PreferenceKey) (bool, error) {
	def, ok := knownPreferences[key]
	if !ok {
		return false, ErrUnknownPreference
	}
	raw, found, err := s.store.Preferences().Get(ctx, userID, string(key))
	if err != nil {
		return false, fmt.Errorf("get preference: %w", err)
	}
	if !found {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def, nil
	}
	return v, nil
}

func (s *PreferenceService) Set(ctx context.Context, userID int64, key PreferenceKey, value bool) error {
	if _, ok := knownPreferences[key]; !ok {
		return ErrUnknownPreference
	}
	if err := s.store.Preferences().Set(ctx, userID, string(key), strconv.FormatBool(value)); err != nil {
		return fmt.Errorf("set preference: %w", err)
	}
	return nil
}
