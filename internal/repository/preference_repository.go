package repository

import (
	"context"
	"database/sql"
	"errors"
)

type PreferenceRepository struct {
	q DBTX
}

func NewPreferenceRepository(q DBTX) *PreferenceRepository {
	return &PreferenceRepository{q: q}
}

func (r *PreferenceRepository) Get(ctx context.Context, userID int64, key string) (string, bool, error) {
	const query = `SELECT value FROM preferences WHERE user_id = ? AND pref_key = ?`
	var value string
	if err := r.q.QueryRowContext(ctx, query, userID, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, classify("get preference", err)
	}
	return value, true, nil
}

func (r *PreferenceRepository) Set(ctx context.Context, userID int64, key, value string) error {
	const query = `
INSERT INTO preferences (user_id, pref_key, value) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = NOW()`
	if _, err := r.q.ExecContext(ctx, query, userID, key, value); err != nil {
		return classify("set preference", err)
	}
	return nil
}
