// Package api is the HTTP surface of the engine: the JWT-authenticated user
// API under /v1 and the basic-auth admin API under /admin.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/faithtrain/internal/auth"
	"github.com/digkill/faithtrain/internal/service"
)

// Services bundles everything the handlers call.
type Services struct {
	Users         *service.UserService
	Streaks       *service.StreakService
	Ledger        *service.PointsLedger
	Boosters      *service.BoosterManager
	Catalog       *service.CatalogService
	Redemptions   *service.RedemptionService
	Gate          *service.EntitlementGate
	Codes         *service.CodeService
	Training      *service.TrainingService
	Subscriptions *service.SubscriptionService
	Preferences   *service.PreferenceService
	Hub           *service.StateHub
}

type Options struct {
	Addr               string
	AdminUsername      string
	AdminPasswordHash  string
	RateLimitPerMinute int
}

type Server struct {
	addr      string
	adminUser string
	adminHash []byte
	svc       Services
	tokens    *auth.Tokens
	limiter   *ipLimiter
	log       *slog.Logger
	router    *chi.Mux
}

func NewServer(opts Options, svc Services, tokens *auth.Tokens, log *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      opts.Addr,
		adminUser: opts.AdminUsername,
		adminHash: []byte(opts.AdminPasswordHash),
		svc:       svc,
		tokens:    tokens,
		limiter:   newIPLimiter(opts.RateLimitPerMinute),
		log:       log,
		router:    r,
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.limiter.middleware)
		v1.Use(s.authMiddleware)

		v1.Get("/features/{feature}/access", s.handleCheckAccess)
		v1.Post("/features/{feature}/usage", s.handleIncrementUsage)
		v1.Post("/sessions", s.handleCompleteSession)

		v1.Get("/rewards", s.handleListRewards)
		v1.Post("/rewards/{id}/redeem", s.handleRedeemReward)
		v1.Post("/grants/{id}/equip", s.handleEquipGrant)
		v1.Post("/grants/{id}/activate", s.handleActivateGrant)
		v1.Post("/codes/redeem", s.handleRedeemCode)

		v1.Route("/me", func(me chi.Router) {
			me.Get("/streak", s.handleStreak)
			me.Get("/balance", s.handleBalance)
			me.Get("/ledger", s.handleLedger)
			me.Get("/grants", s.handleListGrants)
			me.Get("/boosters", s.handleListBoosters)
			me.Get("/subscription", s.handleSubscription)
			me.Get("/preferences/{key}", s.handleGetPreference)
			me.Put("/preferences/{key}", s.handleSetPreference)
			me.Get("/events", s.handleEvents)
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Post("/users", s.handleEnsureUser)
		admin.Post("/users/{id}/token", s.handleIssueToken)
		admin.Put("/users/{id}/subscription", s.handleSetSubscription)
		admin.Route("/rewards", func(r chi.Router) {
			r.Get("/", s.handleAdminListRewards)
			r.Post("/", s.handleCreateReward)
			r.Put("/{id}", s.handleUpdateReward)
		})
		admin.Route("/codes", func(r chi.Router) {
			r.Get("/", s.handleListCodes)
			r.Post("/", s.handleGenerateCode)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// envelope is the body of every failed call and of state transitions that
// report success alongside a message.
type envelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Kind      service.Kind `json:"kind,omitempty"`
	Retryable bool         `json:"retryable,omitempty"`
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotAuthenticated:
		return http.StatusUnauthorized
	case service.KindPremiumRequired:
		return http.StatusForbidden
	case service.KindLimitReached:
		return http.StatusTooManyRequests
	case service.KindInvalidCodeFormat, service.KindInvalid:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInsufficientBalance, service.KindStockExhausted, service.KindAlreadyRedeemed, service.KindConflict:
		return http.StatusConflict
	case service.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("api handler error", "path", r.URL.Path, "kind", kind, "err", err, "request_id", middleware.GetReqID(r.Context()))
	}
	s.writeJSON(w, status, envelope{
		Success:   false,
		Message:   service.Message(err),
		Kind:      kind,
		Retryable: service.Retryable(err),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.fail(w, r, fmt.Errorf("invalid json: %w", service.ErrInvalidInput))
		return false
	}
	return true
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: %w", value, service.ErrInvalidInput)
	}
	return id, nil
}
