package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

type ChannelService interface {
	Create(ctx context.Context, creator *models.User, in service.CreateChannelInput) (*models.Channel, error)
	List(ctx context.Context) ([]models.Channel, error)
	Get(ctx context.Context, id int64) (*models.Channel, error)
	Subscribe(ctx context.Context, channelID int64, user *models.User) (*models.Channel, error)
	Unsubscribe(ctx context.Context, channelID int64, user *models.User) (*models.Channel, error)
}

type ChannelHandler struct {
	errorResponder
	channels ChannelService
}

func NewChannelHandler(channels ChannelService, log *zap.Logger, production bool) *ChannelHandler {
	return &ChannelHandler{
		errorResponder: errorResponder{log: log, production: production},
		channels:       channels,
	}
}

type CreateChannelRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=2000"`
	Category    string `json:"category" binding:"max=50"`
}

func (h *ChannelHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateChannelRequest
	if !bindJSON(c, &req) {
		return
	}

	channel, err := h.channels.Create(c.Request.Context(), user, service.CreateChannelInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Channel created", channel)
}

func (h *ChannelHandler) List(c *gin.Context) {
	channels, err := h.channels.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, channels)
}

func (h *ChannelHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	channel, err := h.channels.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, channel)
}

func (h *ChannelHandler) Subscribe(c *gin.Context) {
	h.membership(c, h.channels.Subscribe, "Subscribed")
}

func (h *ChannelHandler) Unsubscribe(c *gin.Context) {
	h.membership(c, h.channels.Unsubscribe, "Unsubscribed")
}

func (h *ChannelHandler) membership(
	c *gin.Context,
	apply func(context.Context, int64, *models.User) (*models.Channel, error),
	message string,
) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	channel, err := apply(c.Request.Context(), id, user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, message, channel)
}
