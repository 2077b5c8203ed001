package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type UsageRepository struct {
	q DBTX
}

func NewUsageRepository(q DBTX) *UsageRepository {
	return &UsageRepository{q: q}
}

func (r *UsageRepository) Count(ctx context.Context, userID int64, feature string, periodStart time.Time) (int, error) {
	const query = `
SELECT count FROM feature_usage_counters
WHERE user_id = ? AND feature = ? AND period_start = ?`
	var count int
	if err := r.q.QueryRowContext(ctx, query, userID, feature, periodStart).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, classify("count usage", err)
	}
	return count, nil
}

// IncrementBelow creates the period row on first use, then bumps it only
// while count < limit. The conditional UPDATE is the admission check.
func (r *UsageRepository) IncrementBelow(ctx context.Context, userID int64, feature string, periodStart time.Time, limit int) (int, bool, error) {
	const ensure = `
INSERT INTO feature_usage_counters (user_id, feature, period_start, count)
VALUES (?, ?, ?, 0)
ON DUPLICATE KEY UPDATE count = count`
	if _, err := r.q.ExecContext(ctx, ensure, userID, feature, periodStart); err != nil {
		return 0, false, classify("ensure usage row", err)
	}
	const bump = `
UPDATE feature_usage_counters SET count = count + 1, updated_at = NOW()
WHERE user_id = ? AND feature = ? AND period_start = ? AND count < ?`
	res, err := r.q.ExecContext(ctx, bump, userID, feature, periodStart, limit)
	if err != nil {
		return 0, false, classify("increment usage", err)
	}
	ok, err := affected("usage", res)
	if err != nil {
		return 0, false, err
	}
	count, err := r.Count(ctx, userID, feature, periodStart)
	if err != nil {
		return 0, false, err
	}
	return count, ok, nil
}
