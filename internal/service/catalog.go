package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"

	"github.com/digkill/faithtrain/internal/models"
)

var textPolicy = bluemonday.StrictPolicy()

type CatalogService struct {
	store Store
}

type CreateRewardInput struct {
	Title         string
	Description   string
	Category      models.RewardCategory
	Cost          int64
	StockLimit    *int
	PremiumOnly   bool
	UniquePerUser bool
	IsActive      *bool
	EffectKind    models.EffectKind
	EffectMinutes int
	EffectUses    int
}

type UpdateRewardInput struct {
	Title       *string
	Description *string
	PremiumOnly *bool
	IsActive    *bool
}

func NewCatalogService(store Store) *CatalogService {
	return &CatalogService{store: store}
}

func (s *CatalogService) List(ctx context.Context, activeOnly bool) ([]models.Reward, error) {
	rewards, err := s.store.Rewards().List(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return rewards, nil
}

func (s *CatalogService) Get(ctx context.Context, id int64) (*models.Reward, error) {
	reward, err := s.store.Rewards().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	if reward == nil {
		return nil, ErrRewardNotFound
	}
	return reward, nil
}

func (s *CatalogService) Create(ctx context.Context, input CreateRewardInput) (*models.Reward, error) {
	title := cleanText(input.Title)
	if title == "" {
		return nil, fmt.Errorf("title is required: %w", ErrInvalidInput)
	}
	if input.Cost <= 0 {
		return nil, fmt.Errorf("cost must be positive: %w", ErrInvalidInput)
	}
	if input.StockLimit != nil && *input.StockLimit < 0 {
		return nil, fmt.Errorf("stock limit cannot be negative: %w", ErrInvalidInput)
	}
	if input.Category == "" {
		input.Category = models.RewardCosmetic
	}
	switch input.Category {
	case models.RewardCosmetic:
		input.EffectKind, input.EffectMinutes, input.EffectUses = "", 0, 0
	case models.RewardBooster:
		if !input.EffectKind.Valid() {
			return nil, fmt.Errorf("booster needs an effect kind: %w", ErrInvalidInput)
		}
		if input.EffectMinutes <= 0 && input.EffectUses <= 0 {
			return nil, fmt.Errorf("booster needs minutes or uses: %w", ErrInvalidInput)
		}
	default:
		return nil, fmt.Errorf("category %q: %w", input.Category, ErrInvalidInput)
	}
	active := true
	if input.IsActive != nil {
		active = *input.IsActive
	}
	reward := &models.Reward{
		Slug:          slug.Make(title),
		Title:         title,
		Description:   cleanText(input.Description),
		Category:      input.Category,
		Cost:          input.Cost,
		StockLimit:    input.StockLimit,
		PremiumOnly:   input.PremiumOnly,
		UniquePerUser: input.UniquePerUser,
		Active:        active,
		EffectKind:    input.EffectKind,
		EffectMinutes: input.EffectMinutes,
		EffectUses:    input.EffectUses,
	}
	created, err := s.store.Rewards().Create(ctx, reward)
	if err != nil {
		return nil, fmt.Errorf("create reward: %w", err)
	}
	return created, nil
}

// Update edits presentation fields and availability. Cost, stock and the
// redeemed counter are fixed once a reward exists.
func (s *CatalogService) Update(ctx context.Context, id int64, input UpdateRewardInput) (*models.Reward, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		if title := cleanText(*input.Title); title != "" {
			existing.Title = title
			existing.Slug = slug.Make(title)
		}
	}
	if input.Description != nil {
		existing.Description = cleanText(*input.Description)
	}
	if input.PremiumOnly != nil {
		existing.PremiumOnly = *input.PremiumOnly
	}
	if input.IsActive != nil {
		existing.Active = *input.IsActive
	}
	updated, err := s.store.Rewards().Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	return updated, nil
}

func (s *CatalogService) SetActive(ctx context.Context, id int64, active bool) (*models.Reward, error) {
	return s.Update(ctx, id, UpdateRewardInput{IsActive: &active})
}

func cleanText(s string) string {
	return strings.TrimSpace(textPolicy.Sanitize(s))
}
