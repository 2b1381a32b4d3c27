// Package payment wraps the Midtrans card gateway used for donation contributions.
package payment

import (
	"context"
	"fmt"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
)

// Midtrans transaction statuses that mean the money arrived.
const (
	StatusSettlement = "settlement"
	StatusCapture    = "capture"
)

// Charge is a card payment request.
type Charge struct {
	OrderID      string
	GrossAmount  int64
	CustomerName string
}

// Checkout is what the client needs to complete a card payment.
type Checkout struct {
	OrderID     string `json:"orderId"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirectUrl"`
}

// Status is the gateway's view of an order.
type Status struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	GrossAmount       string
}

// Settled reports whether the order has been paid.
func (s *Status) Settled() bool {
	return s.TransactionStatus == StatusSettlement || s.TransactionStatus == StatusCapture
}

// Gateway creates card charges and checks their status.
type Gateway interface {
	CreateCharge(ctx context.Context, charge Charge) (*Checkout, error)
	CheckStatus(ctx context.Context, orderID string) (*Status, error)
}

// MidtransGateway is a Gateway backed by Midtrans snap and core API.
type MidtransGateway struct {
	snap snap.Client
	core coreapi.Client
	log  *zap.Logger
}

// Environment maps a configured environment name to the Midtrans environment.
func Environment(name string) midtrans.EnvironmentType {
	if name == "production" {
		return midtrans.Production
	}
	return midtrans.Sandbox
}

func NewMidtransGateway(serverKey string, env midtrans.EnvironmentType, log *zap.Logger) *MidtransGateway {
	var s snap.Client
	s.New(serverKey, env)

	var c coreapi.Client
	c.New(serverKey, env)

	return &MidtransGateway{
		snap: s,
		core: c,
		log:  log.Named("midtrans"),
	}
}

// CreateCharge opens a snap transaction. The Midtrans client has no context support.
func (g *MidtransGateway) CreateCharge(_ context.Context, charge Charge) (*Checkout, error) {
	name := charge.CustomerName
	if name == "" {
		name = "Anonymous"
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  charge.OrderID,
			GrossAmt: charge.GrossAmount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: name,
		},
	}

	resp, mErr := g.snap.CreateTransaction(req)
	if resp == nil {
		if mErr != nil {
			return nil, fmt.Errorf("%w: create transaction: %s", models.ErrGateway, mErr.Message)
		}
		return nil, fmt.Errorf("%w: create transaction: empty response", models.ErrGateway)
	}
	if mErr != nil {
		g.log.Warn("midtrans returned a response with an error",
			zap.String("order_id", charge.OrderID),
			zap.String("error", mErr.Message),
		)
	}

	return &Checkout{
		OrderID:     charge.OrderID,
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
	}, nil
}

// CheckStatus asks the core API for the order status instead of trusting a notification body.
func (g *MidtransGateway) CheckStatus(_ context.Context, orderID string) (*Status, error) {
	resp, mErr := g.core.CheckTransaction(orderID)
	if resp == nil {
		if mErr != nil {
			return nil, fmt.Errorf("%w: check transaction %s: %s", models.ErrGateway, orderID, mErr.Message)
		}
		return nil, fmt.Errorf("%w: check transaction %s: empty response", models.ErrGateway, orderID)
	}
	if mErr != nil {
		g.log.Warn("midtrans returned a status with an error",
			zap.String("order_id", orderID),
			zap.String("error", mErr.Message),
		)
	}

	return &Status{
		OrderID:           resp.OrderID,
		TransactionID:     resp.TransactionID,
		TransactionStatus: resp.TransactionStatus,
		GrossAmount:       resp.GrossAmount,
	}, nil
}
