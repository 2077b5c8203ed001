package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type ensureUserRequest struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
}

func (s *Server) handleEnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, created, err := s.svc.Users.Ensure(r.Context(), req.TelegramID, req.Username, req.FirstName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, user)
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.svc.Users.Get(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	token, expires, err := s.tokens.Issue(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": expires})
}

type subscriptionRequest struct {
	Tier      models.Tier               `json:"tier"`
	Status    models.SubscriptionStatus `json:"status"`
	ExpiresAt *time.Time                `json:"expires_at"`
	Source    models.SubscriptionSource `json:"source"`
}

func (s *Server) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req subscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Subscriptions.Set(r.Context(), models.SubscriptionRecord{
		UserID:    id,
		Tier:      req.Tier,
		Status:    req.Status,
		ExpiresAt: req.ExpiresAt,
		Source:    req.Source,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAdminListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.svc.Catalog.List(r.Context(), false)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rewards == nil {
		rewards = []models.Reward{}
	}
	s.writeJSON(w, http.StatusOK, rewards)
}

type rewardRequest struct {
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	Category      models.RewardCategory `json:"category"`
	Cost          int64                 `json:"cost"`
	StockLimit    *int                  `json:"stock_limit"`
	PremiumOnly   bool                  `json:"premium_only"`
	UniquePerUser bool                  `json:"unique_per_user"`
	IsActive      *bool                 `json:"is_active"`
	EffectKind    models.EffectKind     `json:"effect_kind"`
	EffectMinutes int                   `json:"effect_minutes"`
	EffectUses    int                   `json:"effect_uses"`
}

type rewardUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	PremiumOnly *bool   `json:"premium_only"`
	IsActive    *bool   `json:"is_active"`
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if !s.decode(w, r, &req) {
		return
	}
	reward, err := s.svc.Catalog.Create(r.Context(), service.CreateRewardInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		Cost:          req.Cost,
		StockLimit:    req.StockLimit,
		PremiumOnly:   req.PremiumOnly,
		UniquePerUser: req.UniquePerUser,
		IsActive:      req.IsActive,
		EffectKind:    req.EffectKind,
		EffectMinutes: req.EffectMinutes,
		EffectUses:    req.EffectUses,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reward)
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req rewardUpdateRequest
	if !s.decode(w, r, &req) {
		return
	}
	reward, err := s.svc.Catalog.Update(r.Context(), id, service.UpdateRewardInput{
		Title:       req.Title,
		Description: req.Description,
		PremiumOnly: req.PremiumOnly,
		IsActive:    req.IsActive,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reward)
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.svc.Codes.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if codes == nil {
		codes = []models.RedemptionCode{}
	}
	s.writeJSON(w, http.StatusOK, codes)
}

type generateCodeRequest struct {
	Tier    models.Tier `json:"tier"`
	MaxUses int         `json:"max_uses"`
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	var req generateCodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	code, err := s.svc.Codes.Generate(r.Context(), req.Tier, req.MaxUses)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, code)
}
