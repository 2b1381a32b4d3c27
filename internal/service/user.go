package service

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"duxxan-platform/internal/models"
)

// WalletPattern is the accepted wallet address format.
var WalletPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

type UserRepo interface {
	GetOrCreateByWallet(ctx context.Context, wallet string) (*models.User, error)
	GetByWallet(ctx context.Context, wallet string) (*models.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) (*models.User, error)
}

type UserService struct {
	users UserRepo
	log   *zap.Logger
}

func NewUserService(users UserRepo, log *zap.Logger) *UserService {
	return &UserService{users: users, log: log.Named("users")}
}

// Resolve returns the user behind a wallet address, registering it on first use.
func (s *UserService) Resolve(ctx context.Context, wallet string) (*models.User, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, models.ErrMissingWallet
	}
	if !WalletPattern.MatchString(wallet) {
		return nil, models.ErrInvalidWallet
	}
	return s.users.GetOrCreateByWallet(ctx, strings.ToLower(wallet))
}

func (s *UserService) UpdateUsername(ctx context.Context, user *models.User, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, models.Invalid("username", "must be 3-32 letters, digits or underscores")
	}
	updated, err := s.users.UpdateUsername(ctx, user.ID, username)
	if err != nil {
		return nil, err
	}
	s.log.Info("username updated", zap.Int64("user_id", user.ID))
	return updated, nil
}
