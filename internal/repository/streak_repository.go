package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/faithtrain/internal/models"
)

type StreakRepository struct {
	q DBTX
}

func NewStreakRepository(q DBTX) *StreakRepository {
	return &StreakRepository{q: q}
}

func (r *StreakRepository) RecordActivity(ctx context.Context, userID int64, kind models.ActivityKind, day time.Time) (bool, error) {
	const query = `
INSERT INTO activity_logs (user_id, kind, activity_date)
VALUES (?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, userID, kind, day); err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, classify("record activity", err)
	}
	return true, nil
}

func (r *StreakRepository) ActivityDays(ctx context.Context, userID int64) ([]time.Time, error) {
	const query = `
SELECT DISTINCT activity_date FROM activity_logs
WHERE user_id = ? ORDER BY activity_date DESC`
	return r.days(ctx, "activity days", query, userID)
}

func (r *StreakRepository) BridgedDays(ctx context.Context, userID int64) ([]time.Time, error) {
	const query = `SELECT bridged_date FROM streak_freezes WHERE user_id = ?`
	return r.days(ctx, "bridged days", query, userID)
}

func (r *StreakRepository) days(ctx context.Context, op, query string, userID int64) ([]time.Time, error) {
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		days = append(days, d.UTC())
	}
	return days, rows.Err()
}

func (r *StreakRepository) RecordBridge(ctx context.Context, userID int64, day time.Time) (bool, error) {
	const query = `INSERT INTO streak_freezes (user_id, bridged_date) VALUES (?, ?)`
	if _, err := r.q.ExecContext(ctx, query, userID, day); err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, classify("record bridge", err)
	}
	return true, nil
}

func (r *StreakRepository) GetState(ctx context.Context, userID int64) (*models.StreakState, error) {
	const query = `
SELECT user_id, current_streak, longest_streak, last_active_date, active_today, updated_at
FROM streak_states WHERE user_id = ?`
	var (
		st   models.StreakState
		last sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&st.UserID, &st.CurrentStreak, &st.LongestStreak, &last, &st.ActiveToday, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get streak", err)
	}
	st.LastActiveDate = timePtr(last)
	return &st, nil
}

func (r *StreakRepository) SaveState(ctx context.Context, st *models.StreakState) error {
	const query = `
INSERT INTO streak_states (user_id, current_streak, longest_streak, last_active_date, active_today, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    current_streak = VALUES(current_streak),
    longest_streak = VALUES(longest_streak),
    last_active_date = VALUES(last_active_date),
    active_today = VALUES(active_today),
    updated_at = VALUES(updated_at)`
	_, err := r.q.ExecContext(ctx, query, st.UserID, st.CurrentStreak, st.LongestStreak, nullTime(st.LastActiveDate), st.ActiveToday, st.UpdatedAt.UTC())
	if err != nil {
		return classify("save streak", err)
	}
	return nil
}
