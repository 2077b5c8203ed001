package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/digkill/faithtrain/internal/models"
)

type CreditResult struct {
	Balance    int64
	Applied    int64
	Multiplier int64
	Entry      *models.LedgerEntry
}

// PointsLedger owns the non-negative points balance. Every change writes a
// ledger entry in the same unit as the balance update.
type PointsLedger struct {
	store    Store
	boosters *BoosterManager
	hub      *StateHub
	log      *slog.Logger
}

func NewPointsLedger(store Store, boosters *BoosterManager, hub *StateHub, log *slog.Logger) *PointsLedger {
	return &PointsLedger{store: store, boosters: boosters, hub: hub, log: log}
}

// Credit applies amount, doubled when a double-points window is active at
// this moment.
func (l *PointsLedger) Credit(ctx context.Context, userID int64, amount int64, reason string) (*CreditResult, error) {
	var out *CreditResult
	err := l.store.InTx(ctx, func(tx Store) error {
		var err error
		out, err = l.credit(ctx, tx, userID, amount, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.hub.Publish(StateChange{UserID: userID, Topic: TopicBalance, Payload: out.Balance})
	return out, nil
}

func (l *PointsLedger) credit(ctx context.Context, tx Store, userID int64, amount int64, reason string) (*CreditResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	multiplier := int64(1)
	doubled, err := l.boosters.isActive(ctx, tx, userID, models.EffectDoublePoints)
	if err != nil {
		return nil, err
	}
	if doubled {
		multiplier = 2
		l.log.Debug("double points applied", "user", userID, "amount", amount)
	}
	applied := amount * multiplier
	entry, err := tx.Ledger().Credit(ctx, userID, applied, reason)
	if err != nil {
		return nil, fmt.Errorf("credit points: %w", err)
	}
	return &CreditResult{
		Balance:    entry.BalanceAfter,
		Applied:    applied,
		Multiplier: multiplier,
		Entry:      entry,
	}, nil
}

// Debit removes amount or fails with ErrInsufficientBalance leaving the
// balance untouched.
func (l *PointsLedger) Debit(ctx context.Context, userID int64, amount int64, reason string) (int64, error) {
	var balance int64
	err := l.store.InTx(ctx, func(tx Store) error {
		entry, err := l.debit(ctx, tx, userID, amount, reason)
		if err != nil {
			return err
		}
		balance = entry.BalanceAfter
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.hub.Publish(StateChange{UserID: userID, Topic: TopicBalance, Payload: balance})
	return balance, nil
}

func (l *PointsLedger) debit(ctx context.Context, tx Store, userID int64, amount int64, reason string) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, ok, err := tx.Ledger().Debit(ctx, userID, amount, reason)
	if err != nil {
		return nil, fmt.Errorf("debit points: %w", err)
	}
	if !ok {
		return nil, ErrInsufficientBalance
	}
	return entry, nil
}

func (l *PointsLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	balance, err := l.store.Ledger().Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

func (l *PointsLedger) History(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := l.store.Ledger().Entries(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}
