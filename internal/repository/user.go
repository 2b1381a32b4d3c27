package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"duxxan-platform/internal/models"
)

const userColumns = `id, wallet_address, username, created_at, updated_at`

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreateByWallet registers a wallet on first sight.
func (r *UserRepository) GetOrCreateByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`INSERT INTO users (wallet_address) VALUES ($1)
		 ON CONFLICT (wallet_address) DO UPDATE SET wallet_address = EXCLUDED.wallet_address
		 RETURNING `+userColumns, strings.ToLower(wallet))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByWallet(ctx context.Context, wallet string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`SELECT `+userColumns+` FROM users WHERE wallet_address = $1`, strings.ToLower(wallet))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by wallet: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) UpdateUsername(ctx context.Context, id int64, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user,
		`UPDATE users SET username = $1, updated_at = NOW() WHERE id = $2
		 RETURNING `+userColumns, username, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		if isUniqueViolation(err) {
			return nil, models.Invalid("username", "is already taken")
		}
		return nil, fmt.Errorf("update username: %w", err)
	}
	return &user, nil
}

// AdminRepository stores back-office accounts.
type AdminRepository struct {
	db *sqlx.DB
}

func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*models.AdminUser, error) {
	var admin models.AdminUser
	err := r.db.GetContext(ctx, &admin,
		`SELECT id, username, password_hash, created_at FROM admin_users WHERE username = $1`, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return &admin, nil
}

// CreateIfAbsent inserts an admin unless the username exists. Reports whether a row was added.
func (r *AdminRepository) CreateIfAbsent(ctx context.Context, username, passwordHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admin_users (username, password_hash) VALUES ($1, $2)
		 ON CONFLICT (username) DO NOTHING`, username, passwordHash)
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return rows == 1, nil
}
