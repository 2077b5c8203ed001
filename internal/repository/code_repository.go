package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type CodeRepository struct {
	q       DBTX
	locking bool
}

func NewCodeRepository(q DBTX, locking bool) *CodeRepository {
	return &CodeRepository{q: q, locking: locking}
}

const codeColumns = `id, code, tier, max_uses, uses, created_at`

func scanCode(row interface{ Scan(...any) error }) (*models.RedemptionCode, error) {
	var c models.RedemptionCode
	if err := row.Scan(&c.ID, &c.Code, &c.Tier, &c.MaxUses, &c.Uses, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CodeRepository) getByID(ctx context.Context, id int64) (*models.RedemptionCode, error) {
	query := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE id = ?`
	c, err := scanCode(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get code by id", err)
	}
	return c, nil
}

// Lock reads the code row, holding it FOR UPDATE inside a transaction.
func (r *CodeRepository) Lock(ctx context.Context, code string) (*models.RedemptionCode, error) {
	query := `SELECT ` + codeColumns + ` FROM redemption_codes WHERE code = ?` + forUpdate(r.locking)
	c, err := scanCode(r.q.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("lock code", err)
	}
	return c, nil
}

func (r *CodeRepository) List(ctx context.Context) ([]models.RedemptionCode, error) {
	query := `SELECT ` + codeColumns + ` FROM redemption_codes ORDER BY id DESC`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, classify("list codes", err)
	}
	defer rows.Close()

	var codes []models.RedemptionCode
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan code list: %w", err)
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

func (r *CodeRepository) Create(ctx context.Context, code *models.RedemptionCode) (*models.RedemptionCode, error) {
	const query = `
INSERT INTO redemption_codes (code, tier, max_uses, uses)
VALUES (?, ?, ?, 0)`
	res, err := r.q.ExecContext(ctx, query, code.Code, code.Tier, code.MaxUses)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("create code: %w", service.ErrDuplicate)
		}
		return nil, classify("create code", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("code last insert id: %w", err)
	}
	return r.getByID(ctx, id)
}

// IncrementUses reports false once the code has reached max_uses.
func (r *CodeRepository) IncrementUses(ctx context.Context, codeID int64) (bool, error) {
	const query = `
UPDATE redemption_codes SET uses = uses + 1
WHERE id = ? AND uses < max_uses`
	res, err := r.q.ExecContext(ctx, query, codeID)
	if err != nil {
		return false, classify("increment code uses", err)
	}
	return affected("code uses", res)
}

// RecordRedemption relies on the (user_id, code_id) unique key.
func (r *CodeRepository) RecordRedemption(ctx context.Context, userID, codeID int64) (bool, error) {
	const query = `
INSERT INTO code_redemptions (user_id, code_id)
VALUES (?, ?)`
	if _, err := r.q.ExecContext(ctx, query, userID, codeID); err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, classify("record redemption", err)
	}
	return true, nil
}
