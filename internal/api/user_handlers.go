package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	decision, err := s.svc.Gate.CheckAccess(r.Context(), userFrom(r.Context()), chi.URLParam(r, "feature"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decision)
}

func (s *Server) handleIncrementUsage(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Gate.IncrementUsage(r.Context(), userFrom(r.Context()), chi.URLParam(r, "feature")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionRequest struct {
	Kind models.ActivityKind `json:"kind"`
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.svc.Training.Complete(r.Context(), userFrom(r.Context()), req.Kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Streaks.Get(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.Ledger.Balance(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"balance": balance})
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.svc.Ledger.History(r.Context(), userFrom(r.Context()), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.svc.Catalog.List(r.Context(), true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rewards == nil {
		rewards = []models.Reward{}
	}
	s.writeJSON(w, http.StatusOK, rewards)
}

type redeemResponse struct {
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	RewardInfo *service.RedeemResult `json:"reward_info,omitempty"`
}

func (s *Server) handleRedeemReward(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.svc.Redemptions.Redeem(r.Context(), userFrom(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, redeemResponse{
		Success:    true,
		Message:    "Redeemed " + res.Reward.Title + ".",
		RewardInfo: res,
	})
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := s.svc.Redemptions.Grants(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if grants == nil {
		grants = []models.UserRewardGrant{}
	}
	s.writeJSON(w, http.StatusOK, grants)
}

type equipRequest struct {
	Equip *bool `json:"equip"`
}

func (s *Server) handleEquipGrant(w http.ResponseWriter, r *http.Request) {
	req := equipRequest{}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	equip := true
	if req.Equip != nil {
		equip = *req.Equip
	}
	grant, err := s.svc.Redemptions.Equip(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"), equip)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, grant)
}

type activateResponse struct {
	Success   bool                  `json:"success"`
	Message   string                `json:"message"`
	ExpiresAt *time.Time            `json:"expires_at,omitempty"`
	Booster   *models.ActiveBooster `json:"booster,omitempty"`
}

func (s *Server) handleActivateGrant(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Boosters.ActivateGrant(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, activateResponse{
		Success:   true,
		Message:   "Booster activated.",
		ExpiresAt: res.ExpiresAt,
		Booster:   res.Booster,
	})
}

func (s *Server) handleListBoosters(w http.ResponseWriter, r *http.Request) {
	boosters, err := s.svc.Boosters.List(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if boosters == nil {
		boosters = []models.ActiveBooster{}
	}
	s.writeJSON(w, http.StatusOK, boosters)
}

type codeRequest struct {
	Code string `json:"code"`
}

type codeResponse struct {
	Success      bool                       `json:"success"`
	Message      string                     `json:"message"`
	Subscription *models.SubscriptionRecord `json:"subscription,omitempty"`
}

func (s *Server) handleRedeemCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !s.decode(w, r, &req) {
		return
	}
	rec, err := s.svc.Codes.Redeem(r.Context(), userFrom(r.Context()), req.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, codeResponse{Success: true, Message: "Premium unlocked.", Subscription: rec})
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Subscriptions.Get(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	premium, err := s.svc.Subscriptions.IsPremium(r.Context(), rec.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"subscription": rec, "is_premium": premium})
}

type preferenceBody struct {
	Key   service.PreferenceKey `json:"key"`
	Value bool                  `json:"value"`
}

func (s *Server) preferenceKey(w http.ResponseWriter, r *http.Request) (service.PreferenceKey, bool) {
	key, err := service.ParsePreferenceKey(chi.URLParam(r, "key"))
	if err != nil {
		s.fail(w, r, err)
		return "", false
	}
	return key, true
}

func (s *Server) handleGetPreference(w http.ResponseWriter, r *http.Request) {
	key, ok := s.preferenceKey(w, r)
	if !ok {
		return
	}
	value, err := s.svc.Preferences.Get(r.Context(), userFrom(r.Context()), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preferenceBody{Key: key, Value: value})
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	key, ok := s.preferenceKey(w, r)
	if !ok {
		return
	}
	var req preferenceBody
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.svc.Preferences.Set(r.Context(), userFrom(r.Context()), key, req.Value); err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preferenceBody{Key: key, Value: req.Value})
}
