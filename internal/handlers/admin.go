package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"duxxan-platform/internal/middleware"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

type AdminService interface {
	Login(ctx context.Context, username, password string) (string, error)
	Stats(ctx context.Context) (*models.PlatformStats, error)
	Jobs(ctx context.Context, limit int) (*service.JobsSummary, error)
	Settle(ctx context.Context, adminID, raffleID int64) (*models.Raffle, error)
}

// AdminRaffles opens raffles without a fee payment.
type AdminRaffles interface {
	CreateAsAdmin(ctx context.Context, adminID int64, creator *models.User, in service.CreateRaffleInput) (*models.Raffle, error)
}

type AdminHandler struct {
	errorResponder
	admin   AdminService
	raffles AdminRaffles
	users   middleware.WalletResolver
}

func NewAdminHandler(
	admin AdminService,
	raffles AdminRaffles,
	users middleware.WalletResolver,
	log *zap.Logger,
	production bool,
) *AdminHandler {
	return &AdminHandler{
		errorResponder: errorResponder{log: log, production: production},
		admin:          admin,
		raffles:        raffles,
		users:          users,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AdminCreateRaffleRequest struct {
	CreatorWalletAddress string          `json:"creatorWalletAddress" binding:"required,wallet"`
	Title                string          `json:"title" binding:"required,max=200"`
	Description          string          `json:"description" binding:"max=5000"`
	PrizeValue           decimal.Decimal `json:"prizeValue"`
	TicketPrice          decimal.Decimal `json:"ticketPrice"`
	MaxTickets           int             `json:"maxTickets" binding:"required,min=1"`
	EndDate              time.Time       `json:"endDate" binding:"required"`
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	token, err := h.admin.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, "Login successful", gin.H{"token": token})
}

// CreateRaffle opens a raffle for the given creator wallet, registering the
// wallet if it has never been seen.
func (h *AdminHandler) CreateRaffle(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Unauthorized(c, models.ErrInvalidToken.Error())
		return
	}
	var req AdminCreateRaffleRequest
	if !bindJSON(c, &req) {
		return
	}

	creator, err := h.users.Resolve(c.Request.Context(), req.CreatorWalletAddress)
	if err != nil {
		h.respondError(c, err)
		return
	}

	created, err := h.raffles.CreateAsAdmin(c.Request.Context(), adminID, creator, service.CreateRaffleInput{
		Title:       req.Title,
		Description: req.Description,
		PrizeValue:  req.PrizeValue,
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Raffle created", created)
}

func (h *AdminHandler) Settle(c *gin.Context) {
	adminID, ok := middleware.AdminID(c)
	if !ok {
		response.Unauthorized(c, models.ErrInvalidToken.Error())
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	r, err := h.admin.Settle(c.Request.Context(), adminID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, "Settlement queued", r)
}

func (h *AdminHandler) Jobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	summary, err := h.admin.Jobs(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, summary)
}

func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, stats)
}
