package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
)

type UserService interface {
	UpdateUsername(ctx context.Context, user *models.User, username string) (*models.User, error)
}

// CreatorRaffles lists the raffles a user has opened.
type CreatorRaffles interface {
	ListByCreator(ctx context.Context, creatorID int64) ([]models.Raffle, error)
}

type UserHandler struct {
	errorResponder
	users   UserService
	raffles CreatorRaffles
}

func NewUserHandler(users UserService, raffles CreatorRaffles, log *zap.Logger, production bool) *UserHandler {
	return &UserHandler{
		errorResponder: errorResponder{log: log, production: production},
		users:          users,
		raffles:        raffles,
	}
}

type UpdateMeRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
}

func (h *UserHandler) GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	response.Success(c, user)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req UpdateMeRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.users.UpdateUsername(c.Request.Context(), user, req.Username)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, "Profile updated", updated)
}

// MyRaffles lists the caller's raffles, newest first.
func (h *UserHandler) MyRaffles(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	raffles, err := h.raffles.ListByCreator(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, raffles)
}
