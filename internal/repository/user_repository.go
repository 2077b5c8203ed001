package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/faithtrain/internal/models"
	"github.com/digkill/faithtrain/internal/service"
)

type UserRepository struct {
	q DBTX
}

func NewUserRepository(q DBTX) *UserRepository {
	return &UserRepository{q: q}
}

const userColumns = `id, COALESCE(telegram_id, 0), COALESCE(username, ''), COALESCE(first_name, ''), created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	u, err := scanUser(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get user", err)
	}
	return u, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	u, err := scanUser(r.q.QueryRowContext(ctx, query, telegramID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("scan user", err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, first_name)
VALUES (NULLIF(?, 0), NULLIF(?, ''), NULLIF(?, ''))`
	res, err := r.q.ExecContext(ctx, query, user.TelegramID, user.Username, user.FirstName)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("insert user: %w", service.ErrDuplicate)
		}
		return nil, classify("insert user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, firstName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), first_name = NULLIF(?, ''), updated_at = NOW()
WHERE id = ?`
	if _, err := r.q.ExecContext(ctx, query, username, firstName, userID); err != nil {
		return classify("update profile", err)
	}
	return nil
}
