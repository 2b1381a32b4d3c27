package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/response"
	"duxxan-platform/internal/service"
)

type DonationService interface {
	Create(ctx context.Context, creator *models.User, in service.CreateDonationInput) (*models.Donation, error)
	List(ctx context.Context) ([]models.Donation, error)
	Get(ctx context.Context, id int64) (*models.Donation, error)
	Contributions(ctx context.Context, id int64) ([]models.DonationContribution, error)
	Contribute(ctx context.Context, donor *models.User, donationID int64, in service.ContributeInput) (*models.DonationContribution, error)
	ContributeCard(ctx context.Context, donor *models.User, donationID int64, amount decimal.Decimal) (*service.CardCheckout, error)
	HandleNotification(ctx context.Context, orderID string) (bool, error)
}

type DonationHandler struct {
	errorResponder
	donations DonationService
}

func NewDonationHandler(donations DonationService, log *zap.Logger, production bool) *DonationHandler {
	return &DonationHandler{
		errorResponder: errorResponder{log: log, production: production},
		donations:      donations,
	}
}

type CreateDonationRequest struct {
	Title            string          `json:"title" binding:"required,max=200"`
	Description      string          `json:"description" binding:"max=5000"`
	GoalAmount       decimal.Decimal `json:"goalAmount"`
	OrganizationType string          `json:"organizationType" binding:"required,oneof=corporate individual"`
	EndDate          *time.Time      `json:"endDate"`
	TransactionHash  string          `json:"transactionHash" binding:"omitempty,txhash"`
}

type ContributeRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	TransactionHash string          `json:"transactionHash" binding:"required,txhash"`
}

type CardContributeRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *DonationHandler) Create(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req CreateDonationRequest
	if !bindJSON(c, &req) {
		return
	}

	donation, err := h.donations.Create(c.Request.Context(), user, service.CreateDonationInput{
		Title:            req.Title,
		Description:      req.Description,
		GoalAmount:       req.GoalAmount,
		OrganizationType: req.OrganizationType,
		EndDate:          req.EndDate,
		TransactionHash:  req.TransactionHash,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Donation created", donation)
}

func (h *DonationHandler) List(c *gin.Context) {
	donations, err := h.donations.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, donations)
}

func (h *DonationHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	donation, err := h.donations.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, donation)
}

func (h *DonationHandler) Contributions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	contributions, err := h.donations.Contributions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Success(c, contributions)
}

func (h *DonationHandler) Contribute(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ContributeRequest
	if !bindJSON(c, &req) {
		return
	}

	contribution, err := h.donations.Contribute(c.Request.Context(), user, id, service.ContributeInput{
		Amount:          req.Amount,
		TransactionHash: req.TransactionHash,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Contribution recorded", contribution)
}

// ContributeCard opens a card checkout and returns the payment link.
func (h *DonationHandler) ContributeCard(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CardContributeRequest
	if !bindJSON(c, &req) {
		return
	}

	checkout, err := h.donations.ContributeCard(c.Request.Context(), user, id, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response.Created(c, "Payment link created", checkout)
}

// HandlePaymentNotification receives the gateway webhook. The body only names
// the order; its status is always re-read from the gateway before settling.
func (h *DonationHandler) HandlePaymentNotification(c *gin.Context) {
	var notification coreapi.TransactionStatusResponse
	if err := c.ShouldBindJSON(&notification); err != nil || notification.OrderID == "" {
		h.log.Warn("invalid payment notification", zap.Error(err))
		response.BadRequest(c, "Invalid notification format")
		return
	}

	settled, err := h.donations.HandleNotification(c.Request.Context(), notification.OrderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := "ok"
	if !settled {
		status = "ok (not settled)"
	}
	c.JSON(http.StatusOK, response.Response{Success: true, Message: status})
}
