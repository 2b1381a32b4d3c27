package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

type MailService interface {
	Inbox(ctx context.Context, user *models.User) ([]models.MailMessage, error)
	Sent(ctx context.Context, user *models.User) ([]models.MailMessage, error)
	UnreadCount(ctx context.Context, user *models.User) (int64, error)
	Send(ctx context.Context, from *models.User, in service.SendMailInput) (*models.MailMessage, error)
	MarkRead(ctx context.Context, id int64, user *models.User) error
}

type MailHandler struct {
	errorResponder
	mail MailService
}

func NewMailHandler(mail MailService, log *zap.Logger, production bool) *MailHandler {
	return &MailHandler{
		errorResponder: errorResponder{log: log, production: production},
		mail:           mail,
	}
}

type SendMailRequest struct {
	ToWalletAddress string `json:"toWalletAddress" binding:"required,wallet"`
	Subject         string `json:"subject" binding:"required,max=200"`
	Body            string `json:"body" binding:"required,max=10000"`
}

func (h *MailHandler) Inbox(c *gin.Context) {
	h.list(c, h.mail.Inbox)
}

func (h *MailHandler) Sent(c *gin.Context) {
	h.list(c, h.mail.Sent)
}

func (h *MailHandler) list(c *gin.Context, load func(context.Context, *models.User) ([]models.MailMessage, error)) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	messages, err := load(c.Request.Context(), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, messages)
}

func (h *MailHandler) UnreadCount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.mail.UnreadCount(c.Request.Context(), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, gin.H{"count": count})
}

func (h *MailHandler) Send(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req SendMailRequest
	if !bindJSON(c, &req) {
		return
	}

	msg, err := h.mail.Send(c.Request.Context(), user, service.SendMailInput{
		ToWallet: req.ToWalletAddress,
		Subject:  req.Subject,
		Body:     req.Body,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Mail sent", msg)
}

// MarkRead only succeeds for the recipient; anyone else gets a 404.
func (h *MailHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.mail.MarkRead(c.Request.Context(), id, user); err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, "Marked as read", nil)
}
