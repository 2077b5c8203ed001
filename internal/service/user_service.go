package service

import (
	"context"
	"fmt"

	"github.com/digkill/faithtrain/internal/models"
)

type UserService struct {
	store Store
}

func NewUserService(store Store) *UserService {
	return &UserService{store: store}
}

// Ensure finds the user behind a telegram account, creating it on first contact.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, firstName string) (*models.User, bool, error) {
	users := s.store.Users()
	user, err := users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	if user != nil {
		if user.Username != username || user.FirstName != firstName {
			if err := users.UpdateProfile(ctx, user.ID, username, firstName); err != nil {
				return nil, false, fmt.Errorf("update profile: %w", err)
			}
			user.Username, user.FirstName = username, firstName
		}
		return user, false, nil
	}
	created, err := users.Create(ctx, &models.User{TelegramID: telegramID, Username: username, FirstName: firstName})
	if err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}
	return created, true, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}
