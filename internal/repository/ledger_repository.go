package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/faithtrain/internal/models"
)

type LedgerRepository struct {
	q DBTX
}

func NewLedgerRepository(q DBTX) *LedgerRepository {
	return &LedgerRepository{q: q}
}

func (r *LedgerRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT balance FROM points_balances WHERE user_id = ?`
	var balance int64
	if err := r.q.QueryRowContext(ctx, query, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, classify("get balance", err)
	}
	return balance, nil
}

func (r *LedgerRepository) Credit(ctx context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, error) {
	const query = `
INSERT INTO points_balances (user_id, balance) VALUES (?, ?)
ON DUPLICATE KEY UPDATE balance = balance + VALUES(balance), updated_at = NOW()`
	if _, err := r.q.ExecContext(ctx, query, userID, amount); err != nil {
		return nil, classify("credit balance", err)
	}
	return r.append(ctx, userID, models.LedgerCredit, amount, reason)
}

// Debit never lets the balance go negative: the UPDATE only matches while
// balance >= amount.
func (r *LedgerRepository) Debit(ctx context.Context, userID int64, amount int64, reason string) (*models.LedgerEntry, bool, error) {
	const query = `
UPDATE points_balances SET balance = balance - ?, updated_at = NOW()
WHERE user_id = ? AND balance >= ?`
	res, err := r.q.ExecContext(ctx, query, amount, userID, amount)
	if err != nil {
		return nil, false, classify("debit balance", err)
	}
	ok, err := affected("debit", res)
	if err != nil || !ok {
		return nil, false, err
	}
	entry, err := r.append(ctx, userID, models.LedgerDebit, amount, reason)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (r *LedgerRepository) append(ctx context.Context, userID int64, dir models.LedgerDirection, amount int64, reason string) (*models.LedgerEntry, error) {
	balance, err := r.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	const query = `
INSERT INTO ledger_entries (user_id, direction, amount, balance_after, reason)
VALUES (?, ?, ?, ?, ?)`
	res, err := r.q.ExecContext(ctx, query, userID, dir, amount, balance, reason)
	if err != nil {
		return nil, classify("insert ledger entry", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("ledger last insert id: %w", err)
	}
	return &models.LedgerEntry{
		ID:           id,
		UserID:       userID,
		Direction:    dir,
		Amount:       amount,
		BalanceAfter: balance,
		Reason:       reason,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

const entryColumns = `id, user_id, direction, amount, balance_after, reason, created_at`

func (r *LedgerRepository) Entries(ctx context.Context, userID int64, limit int) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	return r.list(ctx, "list ledger", query, userID, limit)
}

// EntriesBetween returns entries created in [from, to), oldest first.
func (r *LedgerRepository) EntriesBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE created_at >= ? AND created_at < ? ORDER BY id`
	return r.list(ctx, "ledger range", query, from.UTC(), to.UTC())
}

func (r *LedgerRepository) list(ctx context.Context, op, query string, args ...any) ([]models.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Direction, &e.Amount, &e.BalanceAfter, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
