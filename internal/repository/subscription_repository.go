package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/digkill/faithtrain/internal/models"
)

type SubscriptionRepository struct {
	q DBTX
}

func NewSubscriptionRepository(q DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{q: q}
}

func (r *SubscriptionRepository) Get(ctx context.Context, userID int64) (*models.SubscriptionRecord, error) {
	const query = `
SELECT user_id, tier, status, expires_at, source, updated_at
FROM subscriptions WHERE user_id = ?`
	var (
		rec     models.SubscriptionRecord
		expires sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, userID).Scan(&rec.UserID, &rec.Tier, &rec.Status, &expires, &rec.Source, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get subscription", err)
	}
	rec.ExpiresAt = timePtr(expires)
	return &rec, nil
}

func (r *SubscriptionRepository) Upsert(ctx context.Context, rec *models.SubscriptionRecord) error {
	const query = `
INSERT INTO subscriptions (user_id, tier, status, expires_at, source, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    tier = VALUES(tier),
    status = VALUES(status),
    expires_at = VALUES(expires_at),
    source = VALUES(source),
    updated_at = VALUES(updated_at)`
	_, err := r.q.ExecContext(ctx, query, rec.UserID, rec.Tier, rec.Status, nullTime(rec.ExpiresAt), rec.Source, rec.UpdatedAt.UTC())
	if err != nil {
		return classify("upsert subscription", err)
	}
	return nil
}
