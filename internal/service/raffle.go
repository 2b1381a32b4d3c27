package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/raffle"
	ws "duxxan-platform/internal/websocket"
)

type RaffleRepo interface {
	Create(ctx context.Context, r *models.Raffle) error
	GetByID(ctx context.Context, id int64) (*models.Raffle, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Raffle, error)
	ListByCreator(ctx context.Context, creatorID int64) ([]models.Raffle, error)
	SetApproval(ctx context.Context, id int64, creator, winner bool) (*models.Raffle, error)
}

type TicketLister interface {
	ListByRaffle(ctx context.Context, raffleID int64) ([]models.Ticket, error)
}

// RaffleConfig holds raffle creation settings
type RaffleConfig struct {
	CreationFee decimal.Decimal
	CacheTTL    time.Duration
}

type RaffleService struct {
	raffles   RaffleRepo
	tickets   TicketLister
	used      UsedChecker
	verifier  chain.PaymentVerifier
	scheduler Scheduler
	hub       Broadcaster
	cache     cache.Cache
	audit     audit.Sink
	cfg       RaffleConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewRaffleService(
	raffles RaffleRepo,
	tickets TicketLister,
	used UsedChecker,
	verifier chain.PaymentVerifier,
	scheduler Scheduler,
	hub Broadcaster,
	c cache.Cache,
	sink audit.Sink,
	cfg RaffleConfig,
	log *zap.Logger,
) *RaffleService {
	if cfg.CreationFee.IsZero() {
		cfg.CreationFee = chain.DefaultCreationFee
	}
	return &RaffleService{
		raffles:   raffles,
		tickets:   tickets,
		used:      used,
		verifier:  verifier,
		scheduler: scheduler,
		hub:       hub,
		cache:     c,
		audit:     sink,
		cfg:       cfg,
		log:       log.Named("raffles"),
		now:       time.Now,
	}
}

// CreateRaffleInput is a raffle as submitted by its creator.
type CreateRaffleInput struct {
	Title           string
	Description     string
	PrizeValue      decimal.Decimal
	TicketPrice     decimal.Decimal
	MaxTickets      int
	EndDate         time.Time
	TransactionHash string
}

func (in *CreateRaffleInput) validate(now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return models.Invalid("title", "is required")
	case len(in.Title) > 200:
		return models.Invalid("title", "must be at most 200 characters")
	case !in.PrizeValue.IsPositive():
		return models.Invalid("prizeValue", "must be greater than zero")
	case !in.TicketPrice.IsPositive():
		return models.Invalid("ticketPrice", "must be greater than zero")
	case in.MaxTickets < 1:
		return models.Invalid("maxTickets", "must be at least 1")
	case !in.EndDate.After(now):
		return models.Invalid("endDate", "must be in the future")
	}
	return nil
}

// Create opens a raffle after verifying the creation fee payment.
func (s *RaffleService) Create(ctx context.Context, creator *models.User, in CreateRaffleInput) (*models.Raffle, error) {
	if err := in.validate(s.now()); err != nil {
		return nil, err
	}
	hash, err := normalizeHash("transactionHash", in.TransactionHash)
	if err != nil {
		return nil, err
	}

	err = verifyPayment(ctx, s.used, s.verifier, chain.Payment{
		TxHash: hash,
		From:   creator.WalletAddress,
		Amount: s.cfg.CreationFee,
	})
	if err != nil {
		s.rejected(ctx, creator.ID, hash, err)
		return nil, err
	}

	r := &models.Raffle{
		CreatorID:       creator.ID,
		Title:           in.Title,
		Description:     in.Description,
		PrizeValue:      in.PrizeValue,
		TicketPrice:     in.TicketPrice,
		MaxTickets:      in.MaxTickets,
		EndDate:         in.EndDate,
		TransactionHash: &hash,
	}
	if err := s.raffles.Create(ctx, r); err != nil {
		return nil, err
	}

	s.created(ctx, r, audit.ActionRaffleCreated, creator.ID)
	return r, nil
}

// CreateAsAdmin opens a raffle on behalf of creator without a fee payment.
func (s *RaffleService) CreateAsAdmin(ctx context.Context, adminID int64, creator *models.User, in CreateRaffleInput) (*models.Raffle, error) {
	if err := in.validate(s.now()); err != nil {
		return nil, err
	}

	r := &models.Raffle{
		CreatorID:   creator.ID,
		Title:       in.Title,
		Description: in.Description,
		PrizeValue:  in.PrizeValue,
		TicketPrice: in.TicketPrice,
		MaxTickets:  in.MaxTickets,
		EndDate:     in.EndDate,
	}
	if err := s.raffles.Create(ctx, r); err != nil {
		return nil, err
	}

	s.created(ctx, r, audit.ActionAdminRaffleCreated, adminID)
	return r, nil
}

func (s *RaffleService) created(ctx context.Context, r *models.Raffle, action string, actorID int64) {
	if err := s.scheduler.Schedule(ctx, r); err != nil {
		// the cron poller picks it up after the end date
		s.log.Error("failed to schedule settlement", zap.Int64("raffle_id", r.ID), zap.Error(err))
	}
	invalidate(ctx, s.cache, s.log, cache.KeyActiveRaffles)
	s.hub.Broadcast(ws.EventRaffleCreated, r)
	s.audit.Record(ctx, audit.NewEvent(action, audit.EntityRaffle, r.ID, &actorID, map[string]interface{}{
		"title":        r.Title,
		"ticket_price": r.TicketPrice.String(),
		"max_tickets":  r.MaxTickets,
		"end_date":     r.EndDate,
	}))
	s.log.Info("raffle created", zap.Int64("raffle_id", r.ID), zap.Int64("creator_id", r.CreatorID))
}

func (s *RaffleService) rejected(ctx context.Context, userID int64, hash string, err error) {
	s.audit.Record(ctx, audit.NewEvent(audit.ActionPaymentRejected, audit.EntityRaffle, 0, &userID, map[string]interface{}{
		"tx_hash": hash,
		"reason":  err.Error(),
	}))
}

// ListActive returns raffles still selling tickets.
func (s *RaffleService) ListActive(ctx context.Context) ([]models.Raffle, error) {
	list, err := cachedList(ctx, s.cache, s.log, cache.KeyActiveRaffles, s.cfg.CacheTTL, func() ([]models.Raffle, error) {
		return s.raffles.ListActive(ctx, s.now())
	})
	if err != nil {
		return nil, err
	}

	// a cached list may hold raffles that ended since it was stored
	now := s.now()
	active := make([]models.Raffle, 0, len(list))
	for _, r := range list {
		if r.EndDate.After(now) {
			active = append(active, r)
		}
	}
	return active, nil
}

func (s *RaffleService) ListByCreator(ctx context.Context, creatorID int64) ([]models.Raffle, error) {
	return s.raffles.ListByCreator(ctx, creatorID)
}

// RaffleView is a raffle with its derived lifecycle state.
type RaffleView struct {
	*models.Raffle
	State       raffle.State `json:"state"`
	TicketsLeft int          `json:"ticketsLeft"`
}

func (s *RaffleService) Get(ctx context.Context, id int64) (*RaffleView, error) {
	r, err := s.raffles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RaffleView{
		Raffle:      r,
		State:       raffle.StateOf(r, s.now()),
		TicketsLeft: r.MaxTickets - r.TicketsSold,
	}, nil
}

// Tickets lists a raffle's tickets in stored order.
func (s *RaffleService) Tickets(ctx context.Context, id int64) ([]models.Ticket, error) {
	if _, err := s.raffles.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.tickets.ListByRaffle(ctx, id)
}

// DrawAudit lets anyone recompute a settled raffle's outcome.
type DrawAudit struct {
	RaffleID        int64           `json:"raffleId"`
	WinnerID        int64           `json:"winnerId"`
	WinningTicketID int64           `json:"winningTicketId"`
	Seed            string          `json:"seed"`
	DrawValue       int64           `json:"drawValue"`
	DrawTotal       int64           `json:"drawTotal"`
	SettledAt       *time.Time      `json:"settledAt"`
	Verified        bool            `json:"verified"`
	Tickets         []models.Ticket `json:"tickets"`
}

// Draw returns the persisted draw of a settled raffle and whether replaying it
// over the stored tickets yields the recorded winning ticket.
func (s *RaffleService) Draw(ctx context.Context, id int64) (*DrawAudit, error) {
	r, err := s.raffles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.WinnerID == nil || r.WinningTicketID == nil || r.DrawValue == nil || r.DrawTotal == nil {
		return nil, models.ErrNotSettled
	}

	tickets, err := s.tickets.ListByRaffle(ctx, id)
	if err != nil {
		return nil, err
	}

	a := &DrawAudit{
		RaffleID:        r.ID,
		WinnerID:        *r.WinnerID,
		WinningTicketID: *r.WinningTicketID,
		DrawValue:       *r.DrawValue,
		DrawTotal:       *r.DrawTotal,
		SettledAt:       r.SettledAt,
		Tickets:         tickets,
	}
	if r.DrawSeed != nil {
		a.Seed = *r.DrawSeed
	}

	draw := raffle.Draw{Seed: a.Seed, Value: a.DrawValue, Total: a.DrawTotal}
	if raffle.VerifyDraw(draw, r.ID) && raffle.TotalUnits(tickets) == a.DrawTotal {
		if t, err := raffle.Pick(tickets, a.DrawValue); err == nil {
			a.Verified = t.ID == a.WinningTicketID && t.UserID == a.WinnerID
		}
	}
	return a, nil
}

// Approve records the caller's approval of a settled raffle. Only the creator
// and the winner may approve, each setting their own flag.
func (s *RaffleService) Approve(ctx context.Context, id int64, user *models.User) (*RaffleView, error) {
	r, err := s.raffles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	approval, err := raffle.CanApprove(r, user.ID, s.now())
	if err != nil {
		return nil, err
	}

	r, err = s.raffles.SetApproval(ctx, id, approval.Creator, approval.Winner)
	if err != nil {
		return nil, err
	}

	view := &RaffleView{Raffle: r, State: raffle.StateOf(r, s.now()), TicketsLeft: r.MaxTickets - r.TicketsSold}
	s.hub.Broadcast(ws.EventRaffleApproved, view)
	s.audit.Record(ctx, audit.NewEvent(audit.ActionRaffleApproved, audit.EntityRaffle, r.ID, &user.ID, map[string]interface{}{
		"as_creator": approval.Creator,
		"as_winner":  approval.Winner,
		"state":      string(view.State),
	}))
	return view, nil
}
