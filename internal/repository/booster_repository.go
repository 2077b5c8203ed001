package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/faithtrain/internal/models"
)

type BoosterRepository struct {
	q DBTX
}

func NewBoosterRepository(q DBTX) *BoosterRepository {
	return &BoosterRepository{q: q}
}

const (
	boosterColumns = `id, user_id, kind, expires_at, uses_remaining, COALESCE(source_grant_id, ''), created_at, updated_at`
	activeBooster  = `(expires_at IS NULL OR expires_at > ?) AND (uses_remaining IS NULL OR uses_remaining > 0)`
)

func scanBooster(row interface{ Scan(...any) error }) (*models.ActiveBooster, error) {
	var (
		b       models.ActiveBooster
		expires sql.NullTime
		uses    sql.NullInt64
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.Kind, &expires, &uses, &b.SourceGrantID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.ExpiresAt = timePtr(expires)
	b.UsesRemaining = intPtr(uses)
	return &b, nil
}

func (r *BoosterRepository) ListActive(ctx context.Context, userID int64, now time.Time) ([]models.ActiveBooster, error) {
	query := `SELECT ` + boosterColumns + ` FROM active_boosters WHERE user_id = ? AND ` + activeBooster + ` ORDER BY created_at, id`
	rows, err := r.q.QueryContext(ctx, query, userID, now.UTC())
	if err != nil {
		return nil, classify("list boosters", err)
	}
	defer rows.Close()

	var out []models.ActiveBooster
	for rows.Next() {
		b, err := scanBooster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booster: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BoosterRepository) FindActive(ctx context.Context, userID int64, kind models.EffectKind, now time.Time) (*models.ActiveBooster, error) {
	query := `SELECT ` + boosterColumns + ` FROM active_boosters WHERE user_id = ? AND kind = ? AND ` + activeBooster + ` ORDER BY created_at, id LIMIT 1`
	b, err := scanBooster(r.q.QueryRowContext(ctx, query, userID, kind, now.UTC()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("find booster", err)
	}
	return b, nil
}

func (r *BoosterRepository) Create(ctx context.Context, b *models.ActiveBooster) error {
	const query = `
INSERT INTO active_boosters (id, user_id, kind, expires_at, uses_remaining, source_grant_id)
VALUES (?, ?, ?, ?, ?, NULLIF(?, ''))`
	if _, err := r.q.ExecContext(ctx, query, b.ID, b.UserID, b.Kind, nullTime(b.ExpiresAt), nullInt(b.UsesRemaining), b.SourceGrantID); err != nil {
		return classify("create booster", err)
	}
	return nil
}

func (r *BoosterRepository) ExtendUntil(ctx context.Context, id string, expiresAt time.Time) error {
	const query = `UPDATE active_boosters SET expires_at = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, query, expiresAt.UTC(), id); err != nil {
		return classify("extend booster", err)
	}
	return nil
}

func (r *BoosterRepository) AddUses(ctx context.Context, id string, uses int) error {
	const query = `
UPDATE active_boosters SET uses_remaining = COALESCE(uses_remaining, 0) + ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, query, uses, id); err != nil {
		return classify("add booster uses", err)
	}
	return nil
}

func (r *BoosterRepository) ConsumeUse(ctx context.Context, id string) (bool, error) {
	const query = `
UPDATE active_boosters SET uses_remaining = uses_remaining - 1, updated_at = NOW()
WHERE id = ? AND uses_remaining > 0`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, classify("consume booster use", err)
	}
	return affected("booster use", res)
}
