package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"duxxan-platform/internal/models"
)

type MailRepo interface {
	Create(ctx context.Context, m *models.MailMessage) error
	Inbox(ctx context.Context, userID int64) ([]models.MailMessage, error)
	Sent(ctx context.Context, userID int64) ([]models.MailMessage, error)
	MarkRead(ctx context.Context, id, userID int64) error
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

type MailService struct {
	mail  MailRepo
	users UserRepo
	log   *zap.Logger
}

func NewMailService(mail MailRepo, users UserRepo, log *zap.Logger) *MailService {
	return &MailService{mail: mail, users: users, log: log.Named("mail")}
}

func (s *MailService) Inbox(ctx context.Context, user *models.User) ([]models.MailMessage, error) {
	return s.mail.Inbox(ctx, user.ID)
}

func (s *MailService) Sent(ctx context.Context, user *models.User) ([]models.MailMessage, error) {
	return s.mail.Sent(ctx, user.ID)
}

func (s *MailService) UnreadCount(ctx context.Context, user *models.User) (int64, error) {
	return s.mail.UnreadCount(ctx, user.ID)
}

type SendMailInput struct {
	ToWallet string
	Subject  string
	Body     string
}

// Send delivers a message to a registered wallet.
func (s *MailService) Send(ctx context.Context, from *models.User, in SendMailInput) (*models.MailMessage, error) {
	to := strings.TrimSpace(in.ToWallet)
	subject := strings.TrimSpace(in.Subject)
	switch {
	case !WalletPattern.MatchString(to):
		return nil, models.Invalid("toWalletAddress", "must be a 0x-prefixed 20 byte hex address")
	case subject == "":
		return nil, models.Invalid("subject", "is required")
	case len(subject) > 200:
		return nil, models.Invalid("subject", "must be at most 200 characters")
	case strings.TrimSpace(in.Body) == "":
		return nil, models.Invalid("body", "is required")
	}

	recipient, err := s.users.GetByWallet(ctx, strings.ToLower(to))
	if err != nil {
		return nil, err
	}

	fromID := from.ID
	m := &models.MailMessage{
		FromUserID: &fromID,
		ToUserID:   recipient.ID,
		Subject:    subject,
		Body:       in.Body,
	}
	if err := s.mail.Create(ctx, m); err != nil {
		return nil, err
	}
	s.log.Debug("mail sent", zap.Int64("from_user_id", from.ID), zap.Int64("to_user_id", recipient.ID))
	return m, nil
}

// MarkRead marks a message read. Only its recipient may do so.
func (s *MailService) MarkRead(ctx context.Context, id int64, user *models.User) error {
	return s.mail.MarkRead(ctx, id, user.ID)
}
