package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/raffle"
	ws "duxxan-platform/internal/websocket"
)

type TicketLedger interface {
	Purchase(ctx context.Context, t *models.Ticket, now time.Time) error
	ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
}

type RaffleGetter interface {
	GetByID(ctx context.Context, id int64) (*models.Raffle, error)
}

type TicketService struct {
	raffles  RaffleGetter
	ledger   TicketLedger
	used     UsedChecker
	verifier chain.PaymentVerifier
	hub      Broadcaster
	cache    cache.Cache
	audit    audit.Sink
	log      *zap.Logger
	now      func() time.Time
}

func NewTicketService(
	raffles RaffleGetter,
	ledger TicketLedger,
	used UsedChecker,
	verifier chain.PaymentVerifier,
	hub Broadcaster,
	c cache.Cache,
	sink audit.Sink,
	log *zap.Logger,
) *TicketService {
	return &TicketService{
		raffles:  raffles,
		ledger:   ledger,
		used:     used,
		verifier: verifier,
		hub:      hub,
		cache:    c,
		audit:    sink,
		log:      log.Named("tickets"),
		now:      time.Now,
	}
}

// PurchaseInput is a ticket purchase claim.
type PurchaseInput struct {
	RaffleID        int64
	Quantity        int
	TransactionHash string
}

// TicketPurchased is the payload broadcast after a purchase.
type TicketPurchased struct {
	Ticket      *models.Ticket `json:"ticket"`
	TicketsSold int            `json:"ticketsSold"`
	MaxTickets  int            `json:"maxTickets"`
}

// Purchase verifies that the buyer paid ticketPrice × quantity and appends the
// ticket to the ledger. Closed or sold-out raffles are rejected before the
// chain is queried; the ledger re-checks both under a row lock.
func (s *TicketService) Purchase(ctx context.Context, buyer *models.User, in PurchaseInput) (*models.Ticket, error) {
	if in.Quantity < 1 {
		return nil, models.Invalid("quantity", "must be at least 1")
	}
	hash, err := normalizeHash("transactionHash", in.TransactionHash)
	if err != nil {
		return nil, err
	}

	r, err := s.raffles.GetByID(ctx, in.RaffleID)
	if err != nil {
		return nil, err
	}
	if err := raffle.CanPurchase(r, s.now()); err != nil {
		return nil, err
	}
	if r.TicketsSold+in.Quantity > r.MaxTickets {
		return nil, models.ErrSoldOut
	}

	cost := chain.TicketCost(r.TicketPrice, in.Quantity)
	err = verifyPayment(ctx, s.used, s.verifier, chain.Payment{
		TxHash: hash,
		From:   buyer.WalletAddress,
		Amount: cost,
	})
	if err != nil {
		uid := buyer.ID
		s.audit.Record(ctx, audit.NewEvent(audit.ActionPaymentRejected, audit.EntityRaffle, r.ID, &uid, map[string]interface{}{
			"tx_hash":  hash,
			"quantity": in.Quantity,
			"reason":   err.Error(),
		}))
		return nil, err
	}

	t := &models.Ticket{
		RaffleID:        r.ID,
		UserID:          buyer.ID,
		Quantity:        in.Quantity,
		TotalAmount:     cost,
		TransactionHash: hash,
	}
	if err := s.ledger.Purchase(ctx, t, s.now()); err != nil {
		return nil, err
	}

	s.log.Info("tickets purchased",
		zap.Int64("raffle_id", r.ID),
		zap.Int64("user_id", buyer.ID),
		zap.Int("quantity", t.Quantity),
		zap.String("tx_hash", hash),
	)
	invalidate(ctx, s.cache, s.log, cache.KeyActiveRaffles)
	s.hub.Broadcast(ws.EventTicketPurchased, TicketPurchased{
		Ticket:      t,
		TicketsSold: r.TicketsSold + t.Quantity,
		MaxTickets:  r.MaxTickets,
	})
	uid := buyer.ID
	s.audit.Record(ctx, audit.NewEvent(audit.ActionTicketPurchased, audit.EntityTicket, t.ID, &uid, map[string]interface{}{
		"raffle_id":    r.ID,
		"quantity":     t.Quantity,
		"total_amount": cost.String(),
		"tx_hash":      hash,
	}))
	return t, nil
}

func (s *TicketService) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	return s.ledger.ListByUser(ctx, userID)
}
