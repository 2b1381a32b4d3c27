package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"duxxan-platform/internal/models"
)

const mailColumns = `id, from_user_id, to_user_id, subject, body, is_read, created_at`

type MailRepository struct {
	db *sqlx.DB
}

func NewMailRepository(db *sqlx.DB) *MailRepository {
	return &MailRepository{db: db}
}

func (r *MailRepository) Create(ctx context.Context, m *models.MailMessage) error {
	err := r.db.GetContext(ctx, m,
		`INSERT INTO mail_messages (from_user_id, to_user_id, subject, body)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+mailColumns,
		m.FromUserID, m.ToUserID, m.Subject, m.Body)
	if err != nil {
		if isForeignKeyViolation(err) {
			return models.ErrUserNotFound
		}
		return fmt.Errorf("insert mail: %w", err)
	}
	return nil
}

func (r *MailRepository) Inbox(ctx context.Context, userID int64) ([]models.MailMessage, error) {
	messages := []models.MailMessage{}
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+mailColumns+` FROM mail_messages WHERE to_user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	return messages, nil
}

func (r *MailRepository) Sent(ctx context.Context, userID int64) ([]models.MailMessage, error) {
	messages := []models.MailMessage{}
	err := r.db.SelectContext(ctx, &messages,
		`SELECT `+mailColumns+` FROM mail_messages WHERE from_user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list sent mail: %w", err)
	}
	return messages, nil
}

// MarkRead flags a message as read. Only its recipient may do so.
func (r *MailRepository) MarkRead(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mail_messages SET is_read = TRUE WHERE id = $1 AND to_user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("mark mail read: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark mail read: %w", err)
	}
	if rows == 0 {
		return models.ErrMailNotFound
	}
	return nil
}

func (r *MailRepository) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM mail_messages WHERE to_user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread mail: %w", err)
	}
	return n, nil
}
