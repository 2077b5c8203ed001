package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

func TestDebitInsufficientBalance(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	e.fund(t, uid, 30)

	_, err := e.ledger.Debit(ctx, uid, 31, "too much")
	if !errors.Is(err, service.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want insufficient balance", err)
	}
	balance, err := e.ledger.Balance(ctx, uid)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 30 {
		t.Fatalf("balance = %d, want 30", balance)
	}
	entries, err := e.ledger.History(ctx, uid, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the credit", len(entries))
	}
}

func TestDebitExactBalance(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	e.fund(t, uid, 30)

	balance, err := e.ledger.Debit(ctx, uid, 30, "all in")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
	entries, _ := e.ledger.History(ctx, uid, 10)
	if len(entries) != 2 || entries[0].Direction != models.LedgerDebit || entries[0].BalanceAfter != 0 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestCreditRejectsNonPositive(t *testing.T) {
	e := newEngine(t)
	uid := e.user(t, 1)
	for _, amount := range []int64{0, -5} {
		if _, err := e.ledger.Credit(context.Background(), uid, amount, "bad"); !errors.Is(err, service.ErrInvalidAmount) {
			t.Errorf("credit %d: err = %v", amount, err)
		}
		if _, err := e.ledger.Debit(context.Background(), uid, amount, "bad"); !errors.Is(err, service.ErrInvalidAmount) {
			t.Errorf("debit %d: err = %v", amount, err)
		}
	}
}

func TestDoublePointsWindow(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)

	if _, err := e.boosters.Activate(ctx, uid, models.EffectDoublePoints, service.BoosterGrant{Duration: time.Hour}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	res, err := e.ledger.Credit(ctx, uid, 15, "session")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if res.Applied != 30 || res.Multiplier != 2 || res.Balance != 30 {
		t.Fatalf("doubled credit = %+v", res)
	}

	e.clock.Advance(time.Hour)
	res, err = e.ledger.Credit(ctx, uid, 15, "session")
	if err != nil {
		t.Fatalf("credit after expiry: %v", err)
	}
	if res.Applied != 15 || res.Multiplier != 1 || res.Balance != 45 {
		t.Fatalf("credit after expiry = %+v", res)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	uid := e.user(t, 1)
	for _, amount := range []int64{1, 2, 3} {
		e.fund(t, uid, amount)
	}
	entries, err := e.ledger.History(ctx, uid, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 || entries[0].Amount != 3 || entries[1].Amount != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].BalanceAfter != 6 {
		t.Fatalf("balance after = %d, want 6", entries[0].BalanceAfter)
	}
}
