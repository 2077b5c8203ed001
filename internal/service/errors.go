package service

import (
	"context"
	"errors"
)

// Kind is the user-visible error class surfaced by every engine operation.
type Kind string

const (
	KindNone                Kind = ""
	KindNotAuthenticated    Kind = "not_authenticated"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindStockExhausted      Kind = "stock_exhausted"
	KindPremiumRequired     Kind = "premium_required"
	KindLimitReached        Kind = "limit_reached"
	KindInvalidCodeFormat   Kind = "invalid_code_format"
	KindAlreadyRedeemed     Kind = "already_redeemed"
	KindTransient           Kind = "transient"
	KindNotFound            Kind = "not_found"
	KindInvalid             Kind = "invalid"
	KindConflict            Kind = "conflict"
	KindInternal            Kind = "internal"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrStockExhausted      = errors.New("reward stock exhausted")
	ErrPremiumRequired     = errors.New("premium subscription required")
	ErrLimitReached        = errors.New("free usage limit reached")
	ErrInvalidCodeFormat   = errors.New("invalid redemption code format")
	ErrAlreadyRedeemed     = errors.New("already redeemed")
	ErrAlreadyOwned        = errors.New("reward already owned")
	ErrRewardInactive      = errors.New("reward is not active")
	ErrTransient           = errors.New("temporary backend failure")

	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrRewardNotFound    = errors.New("reward not found")
	ErrGrantNotFound     = errors.New("grant not found")
	ErrNotBooster        = errors.New("reward is not a booster")
	ErrAlreadyActivated  = errors.New("booster already activated")
	ErrCodeNotFound      = errors.New("redemption code not found")
	ErrCodeExhausted     = errors.New("redemption code exhausted")
	ErrUnknownPreference = errors.New("unknown preference key")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicate         = errors.New("record already exists")
)

// KindOf classifies err into the engine taxonomy.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotAuthenticated):
		return KindNotAuthenticated
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrStockExhausted):
		return KindStockExhausted
	case errors.Is(err, ErrPremiumRequired):
		return KindPremiumRequired
	case errors.Is(err, ErrLimitReached):
		return KindLimitReached
	case errors.Is(err, ErrInvalidCodeFormat):
		return KindInvalidCodeFormat
	case errors.Is(err, ErrAlreadyRedeemed), errors.Is(err, ErrAlreadyOwned), errors.Is(err, ErrAlreadyActivated):
		return KindAlreadyRedeemed
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, ErrRewardNotFound), errors.Is(err, ErrGrantNotFound), errors.Is(err, ErrCodeNotFound), errors.Is(err, ErrUserNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownPreference), errors.Is(err, ErrNotBooster):
		return KindInvalid
	case errors.Is(err, ErrRewardInactive), errors.Is(err, ErrCodeExhausted), errors.Is(err, ErrDuplicate):
		return KindConflict
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry the failed operation as is.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// Message returns the short user-facing text for err.
func Message(err error) string {
	switch KindOf(err) {
	case KindNone:
		return "ok"
	case KindNotAuthenticated:
		return "Please sign in to continue."
	case KindInsufficientBalance:
		return "Not enough points for this reward."
	case KindStockExhausted:
		return "This reward is sold out."
	case KindPremiumRequired:
		return "This is a premium feature."
	case KindLimitReached:
		return "You have reached your free limit for now."
	case KindInvalidCodeFormat:
		return "Codes look like FT-XXXXXX."
	case KindAlreadyRedeemed:
		return "You already have this."
	case KindTransient:
		return "Something went wrong on our side, please try again."
	case KindNotFound, KindInvalid, KindConflict:
		return capitalize(unwrapRoot(err).Error()) + "."
	default:
		return "Unexpected error."
	}
}

func unwrapRoot(err error) error {
	for _, sentinel := range []error{
		ErrRewardNotFound, ErrGrantNotFound, ErrCodeNotFound, ErrUserNotFound,
		ErrInvalidAmount, ErrInvalidInput, ErrUnknownPreference, ErrNotBooster,
		ErrRewardInactive, ErrCodeExhausted, ErrDuplicate,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
