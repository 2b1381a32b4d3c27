package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

type RaffleService interface {
	Create(ctx context.Context, creator *models.User, in service.CreateRaffleInput) (*models.Raffle, error)
	ListActive(ctx context.Context) ([]models.Raffle, error)
	Get(ctx context.Context, id int64) (*service.RaffleView, error)
	Tickets(ctx context.Context, id int64) ([]models.Ticket, error)
	Draw(ctx context.Context, id int64) (*service.DrawAudit, error)
	Approve(ctx context.Context, id int64, user *models.User) (*service.RaffleView, error)
}

type TicketService interface {
	Purchase(ctx context.Context, buyer *models.User, in service.PurchaseInput) (*models.Ticket, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
}

type RaffleHandler struct {
	errorResponder
	raffles RaffleService
}

func NewRaffleHandler(raffles RaffleService, log *zap.Logger, production bool) *RaffleHandler {
	return &RaffleHandler{
		errorResponder: errorResponder{log: log, production: production},
		raffles:        raffles,
	}
}

type CreateRaffleRequest struct {
	Title           string          `json:"title" binding:"required,max=200"`
	Description     string          `json:"description" binding:"max=5000"`
	PrizeValue      decimal.Decimal `json:"prizeValue"`
	TicketPrice     decimal.Decimal `json:"ticketPrice"`
	MaxTickets      int             `json:"maxTickets" binding:"required,min=1"`
	EndDate         time.Time       `json:"endDate" binding:"required"`
	TransactionHash string          `json:"transactionHash" binding:"required,txhash"`
}

func (r CreateRaffleRequest) input() service.CreateRaffleInput {
	return service.CreateRaffleInput{
		Title:           r.Title,
		Description:     r.Description,
		PrizeValue:      r.PrizeValue,
		TicketPrice:     r.TicketPrice,
		MaxTickets:      r.MaxTickets,
		EndDate:         r.EndDate,
		TransactionHash: r.TransactionHash,
	}
}

func (h *RaffleHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateRaffleRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.raffles.Create(c.Request.Context(), user, req.input())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Raffle created", created)
}

func (h *RaffleHandler) List(c *gin.Context) {
	raffles, err := h.raffles.ListActive(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, raffles)
}

func (h *RaffleHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.raffles.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, view)
}

func (h *RaffleHandler) Tickets(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tickets, err := h.raffles.Tickets(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, tickets)
}

// Draw returns the stored seed and draw so clients can replay the selection.
func (h *RaffleHandler) Draw(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	audit, err := h.raffles.Draw(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, audit)
}

func (h *RaffleHandler) Approve(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.raffles.Approve(c.Request.Context(), id, user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.SuccessMessage(c, "Raffle approved", view)
}

type TicketHandler struct {
	errorResponder
	tickets TicketService
}

func NewTicketHandler(tickets TicketService, log *zap.Logger, production bool) *TicketHandler {
	return &TicketHandler{
		errorResponder: errorResponder{log: log, production: production},
		tickets:        tickets,
	}
}

type PurchaseTicketsRequest struct {
	RaffleID        int64  `json:"raffleId" binding:"required,min=1"`
	Quantity        int    `json:"quantity" binding:"required,min=1,max=10000"`
	TransactionHash string `json:"transactionHash" binding:"required,txhash"`
}

func (h *TicketHandler) Purchase(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req PurchaseTicketsRequest
	if !bindJSON(c, &req) {
		return
	}

	ticket, err := h.tickets.Purchase(c.Request.Context(), user, service.PurchaseInput{
		RaffleID:        req.RaffleID,
		Quantity:        req.Quantity,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Tickets purchased", ticket)
}

func (h *TicketHandler) Mine(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	tickets, err := h.tickets.ListByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, tickets)
}
