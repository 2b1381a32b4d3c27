package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"duxxan-platform/internal/models"
)

const channelColumns = `id, creator_id, name, description, category, subscriber_count, created_at`

type ChannelRepository struct {
	db *sqlx.DB
}

func NewChannelRepository(db *sqlx.DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) Create(ctx context.Context, ch *models.Channel) error {
	err := r.db.GetContext(ctx, ch,
		`INSERT INTO channels (creator_id, name, description, category)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+channelColumns,
		ch.CreatorID, ch.Name, ch.Description, ch.Category)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r *ChannelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	err := r.db.GetContext(ctx, &ch, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrChannelNotFound
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

func (r *ChannelRepository) List(ctx context.Context) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := r.db.SelectContext(ctx, &channels,
		`SELECT `+channelColumns+` FROM channels ORDER BY subscriber_count DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

// Subscribe adds userID to the channel. The count only moves when a row is inserted.
func (r *ChannelRepository) Subscribe(ctx context.Context, channelID, userID int64) (*models.Channel, bool, error) {
	return r.toggle(ctx, channelID, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`INSERT INTO channel_subscriptions (channel_id, user_id) VALUES ($1, $2)
			 ON CONFLICT (channel_id, user_id) DO NOTHING`, channelID, userID)
	}, `UPDATE channels SET subscriber_count = subscriber_count + 1 WHERE id = $1`)
}

// Unsubscribe removes userID from the channel. Repeating it is a no-op.
func (r *ChannelRepository) Unsubscribe(ctx context.Context, channelID, userID int64) (*models.Channel, bool, error) {
	return r.toggle(ctx, channelID, func(tx *sqlx.Tx) (sql.Result, error) {
		return tx.ExecContext(ctx,
			`DELETE FROM channel_subscriptions WHERE channel_id = $1 AND user_id = $2`, channelID, userID)
	}, `UPDATE channels SET subscriber_count = GREATEST(subscriber_count - 1, 0) WHERE id = $1`)
}

func (r *ChannelRepository) toggle(ctx context.Context, channelID int64, change func(*sqlx.Tx) (sql.Result, error), adjust string) (*models.Channel, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked int64
	err = tx.GetContext(ctx, &locked, `SELECT id FROM channels WHERE id = $1 FOR UPDATE`, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, models.ErrChannelNotFound
		}
		return nil, false, fmt.Errorf("lock channel: %w", err)
	}

	res, err := change(tx)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, models.ErrUserNotFound
		}
		return nil, false, fmt.Errorf("update subscription: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("update subscription: %w", err)
	}

	changed := rows == 1
	if changed {
		if _, err := tx.ExecContext(ctx, adjust, channelID); err != nil {
			return nil, false, fmt.Errorf("update subscriber count: %w", err)
		}
	}

	var ch models.Channel
	if err := tx.GetContext(ctx, &ch, `SELECT `+channelColumns+` FROM channels WHERE id = $1`, channelID); err != nil {
		return nil, false, fmt.Errorf("reload channel: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return &ch, changed, nil
}

// IsSubscribed reports whether userID follows the channel.
func (r *ChannelRepository) IsSubscribed(ctx context.Context, channelID, userID int64) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok,
		`SELECT EXISTS (SELECT 1 FROM channel_subscriptions WHERE channel_id = $1 AND user_id = $2)`,
		channelID, userID)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return ok, nil
}
