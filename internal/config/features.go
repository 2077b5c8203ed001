package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type featureFile struct {
	Features []featureEntry `yaml:"features"`
}

type featureEntry struct {
	Name   string `yaml:"name"`
	Free   bool   `yaml:"free"`
	Limit  int    `yaml:"limit"`
	Period string `yaml:"period"`
}

// DefaultFeatures is used when no policy file exists.
func DefaultFeatures() []service.FeatureRule {
	return []service.FeatureRule{
		{Name: "daily_training", Free: true},
		{Name: "follow", Limit: 5, Period: models.PeriodLifetime},
		{Name: "bible_chat", Limit: 3, Period: models.PeriodDaily},
		{Name: "reading_plans", Limit: 1, Period: models.PeriodMonthly},
		{Name: "advanced_stats"},
	}
}

// LoadFeatures reads the feature policy YAML at path, falling back to
// DefaultFeatures when the file does not exist.
func LoadFeatures(path string) (*service.FeaturePolicy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return service.NewFeaturePolicy(DefaultFeatures())
		}
		return nil, fmt.Errorf("read features %s: %w", path, err)
	}
	return ParseFeatures(raw)
}

func ParseFeatures(raw []byte) (*service.FeaturePolicy, error) {
	var file featureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse features: %w", err)
	}
	rules := make([]service.FeatureRule, 0, len(file.Features))
	for _, f := range file.Features {
		rules = append(rules, service.FeatureRule{
			Name:   f.Name,
			Free:   f.Free,
			Limit:  f.Limit,
			Period: models.UsagePeriod(f.Period),
		})
	}
	return service.NewFeaturePolicy(rules)
}
