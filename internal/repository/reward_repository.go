package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type RewardRepository struct {
	q       DBTX
	locking bool
}

func NewRewardRepository(q DBTX, locking bool) *RewardRepository {
	return &RewardRepository{q: q, locking: locking}
}

const rewardColumns = `id, slug, title, COALESCE(description, ''), category, cost, stock_limit, times_redeemed,
premium_only, unique_per_user, is_active, COALESCE(effect_kind, ''), effect_minutes, effect_uses, created_at, updated_at`

func scanReward(row interface{ Scan(...any) error }) (*models.Reward, error) {
	var (
		rw    models.Reward
		stock sql.NullInt64
	)
	err := row.Scan(&rw.ID, &rw.Slug, &rw.Title, &rw.Description, &rw.Category, &rw.Cost, &stock, &rw.TimesRedeemed,
		&rw.PremiumOnly, &rw.UniquePerUser, &rw.Active, &rw.EffectKind, &rw.EffectMinutes, &rw.EffectUses, &rw.CreatedAt, &rw.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rw.StockLimit = intPtr(stock)
	return &rw, nil
}

func (r *RewardRepository) List(ctx context.Context, activeOnly bool) ([]models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list rewards", err)
	}
	defer rows.Close()

	var rewards []models.Reward
	for rows.Next() {
		rw, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *rw)
	}
	return rewards, rows.Err()
}

func (r *RewardRepository) get(ctx context.Context, id int64, lock bool) (*models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = ?` + forUpdate(lock)
	rw, err := scanReward(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get reward", err)
	}
	return rw, nil
}

func (r *RewardRepository) GetByID(ctx context.Context, id int64) (*models.Reward, error) {
	return r.get(ctx, id, false)
}

// Lock serializes redemptions of one reward for the rest of the transaction.
func (r *RewardRepository) Lock(ctx context.Context, id int64) (*models.Reward, error) {
	return r.get(ctx, id, r.locking)
}

func (r *RewardRepository) Create(ctx context.Context, rw *models.Reward) (*models.Reward, error) {
	const query = `
INSERT INTO rewards (slug, title, description, category, cost, stock_limit, premium_only, unique_per_user, is_active, effect_kind, effect_minutes, effect_uses)
VALUES (?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)`
	res, err := r.q.ExecContext(ctx, query, rw.Slug, rw.Title, rw.Description, rw.Category, rw.Cost, nullInt(rw.StockLimit),
		rw.PremiumOnly, rw.UniquePerUser, rw.Active, rw.EffectKind, rw.EffectMinutes, rw.EffectUses)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("create reward %q: %w", rw.Slug, service.ErrDuplicate)
		}
		return nil, classify("create reward", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reward last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// Update rewrites the editable presentation fields. Cost, stock and effect
// are fixed once a reward exists.
func (r *RewardRepository) Update(ctx context.Context, rw *models.Reward) (*models.Reward, error) {
	const query = `
UPDATE rewards
SET slug = ?, title = ?, description = NULLIF(?, ''), premium_only = ?, is_active = ?, updated_at = NOW()
WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, query, rw.Slug, rw.Title, rw.Description, rw.PremiumOnly, rw.Active, rw.ID); err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("update reward %q: %w", rw.Slug, service.ErrDuplicate)
		}
		return nil, classify("update reward", err)
	}
	return r.GetByID(ctx, rw.ID)
}

func (r *RewardRepository) IncrementRedeemed(ctx context.Context, id int64) (bool, error) {
	const query = `
UPDATE rewards SET times_redeemed = times_redeemed + 1, updated_at = NOW()
WHERE id = ? AND (stock_limit IS NULL OR times_redeemed < stock_limit)`
	res, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return false, classify("increment redeemed", err)
	}
	return affected("reward stock", res)
}

const grantColumns = `id, user_id, reward_id, redeemed_at, is_equipped, activated_at`

func scanGrant(row interface{ Scan(...any) error }) (*models.UserRewardGrant, error) {
	var (
		g         models.UserRewardGrant
		activated sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.UserID, &g.RewardID, &g.RedeemedAt, &g.IsEquipped, &activated); err != nil {
		return nil, err
	}
	g.ActivatedAt = timePtr(activated)
	return &g, nil
}

func (r *RewardRepository) CreateGrant(ctx context.Context, g *models.UserRewardGrant) error {
	const query = `
INSERT INTO user_reward_grants (id, user_id, reward_id, redeemed_at, is_equipped)
VALUES (?, ?, ?, ?, ?)`
	if _, err := r.q.ExecContext(ctx, query, g.ID, g.UserID, g.RewardID, g.RedeemedAt.UTC(), g.IsEquipped); err != nil {
		return classify("create grant", err)
	}
	return nil
}

func (r *RewardRepository) LockGrant(ctx context.Context, id string) (*models.UserRewardGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM user_reward_grants WHERE id = ?` + forUpdate(r.locking)
	g, err := scanGrant(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("lock grant", err)
	}
	return g, nil
}

func (r *RewardRepository) HasGrant(ctx context.Context, userID, rewardID int64) (bool, error) {
	const query = `SELECT 1 FROM user_reward_grants WHERE user_id = ? AND reward_id = ? LIMIT 1`
	var dummy int
	if err := r.q.QueryRowContext(ctx, query, userID, rewardID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, classify("check grant", err)
	}
	return true, nil
}

func (r *RewardRepository) ListGrants(ctx context.Context, userID int64) ([]models.UserRewardGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM user_reward_grants WHERE user_id = ? ORDER BY redeemed_at, id`
	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("list grants", err)
	}
	defer rows.Close()

	var grants []models.UserRewardGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, *g)
	}
	return grants, rows.Err()
}

func (r *RewardRepository) SetEquipped(ctx context.Context, grantID string, equipped bool) error {
	const query = `UPDATE user_reward_grants SET is_equipped = ? WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, query, equipped, grantID); err != nil {
		return classify("set equipped", err)
	}
	return nil
}

// MarkActivated succeeds once per grant.
func (r *RewardRepository) MarkActivated(ctx context.Context, grantID string, at time.Time) (bool, error) {
	const query = `UPDATE user_reward_grants SET activated_at = ? WHERE id = ? AND activated_at IS NULL`
	res, err := r.q.ExecContext(ctx, query, at.UTC(), grantID)
	if err != nil {
		return false, classify("mark activated", err)
	}
	return affected("grant activation", res)
}
