// Package settlement draws raffle winners once raffles end.
//
// Each raffle gets one "settle:<id>" job scheduled at its end date. A cron
// poller re-enqueues raffles whose job was lost (restart with the memory
// backend), and a second cron sweep forfeits raffles whose approval window
// expired. Writing the winner is a compare-and-swap on settlement_version, so
// concurrent settlers cannot both win.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/logger"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/queue"
	"duxxan-platform/internal/raffle"
	ws "duxxan-platform/internal/websocket"
)

// JobType is the queue job type handled by Service.HandleJob.
const JobType = "settle"

// Outcomes reported to the observer.
const (
	OutcomeSettled        = "settled"
	OutcomeDeferred       = "deferred"
	OutcomeNoTickets      = "no_tickets"
	OutcomeLostRace       = "lost_race"
	OutcomeAlreadySettled = "already_settled"
	OutcomeFailed         = "failed"
	OutcomeError          = "error"
)

type RaffleStore interface {
	GetByID(ctx context.Context, id int64) (*models.Raffle, error)
	ListPendingSettlement(ctx context.Context, now time.Time, limit int) ([]models.Raffle, error)
	CompleteSettlement(ctx context.Context, id, version int64, o models.SettlementOutcome) error
	MarkSettlementFailed(ctx context.Context, id int64, reason string) error
	ResetSettlement(ctx context.Context, id int64) (*models.Raffle, error)
	ForfeitExpired(ctx context.Context, now time.Time) ([]int64, error)
}

type TicketStore interface {
	ListByRaffle(ctx context.Context, raffleID int64) ([]models.Ticket, error)
}

type MailStore interface {
	Create(ctx context.Context, m *models.MailMessage) error
}

type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job queue.Job) error
}

// Config holds settlement scheduling settings
type Config struct {
	PollSpec       string
	ForfeitureSpec string
	ApprovalWindow time.Duration
	BatchSize      int
}

// Deps are the collaborators of a Service.
type Deps struct {
	Raffles RaffleStore
	Tickets TicketStore
	Mail    MailStore
	Queue   Enqueuer
	Hub     Broadcaster
	Cache   cache.Cache
	Audit   audit.Sink
	Drawer  raffle.Drawer
}

type Service struct {
	Deps
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
	observer func(outcome string)
	cron     *cron.Cron
}

// Payload is the body of a settle job.
type Payload struct {
	RaffleID int64 `json:"raffleId"`
}

func NewService(deps Deps, cfg Config, log *zap.Logger) *Service {
	if deps.Drawer == nil {
		deps.Drawer = raffle.SeedDrawer{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NoopCache{}
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogSink(log)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Service{
		Deps:     deps,
		cfg:      cfg,
		log:      log.Named("settlement"),
		now:      time.Now,
		observer: func(string) {},
	}
}

// Observe sets a callback for settlement outcomes (metrics).
func (s *Service) Observe(fn func(outcome string)) {
	s.observer = fn
}

// JobID is the queue id of a raffle's settle job.
func JobID(raffleID int64) string {
	return JobType + ":" + strconv.FormatInt(raffleID, 10)
}

// Schedule enqueues the settle job at the raffle's end date, or now if it
// already passed. An already queued job for the raffle is kept.
func (s *Service) Schedule(ctx context.Context, r *models.Raffle) error {
	runAt := r.EndDate
	if now := s.now(); runAt.Before(now) {
		runAt = now
	}

	job, err := queue.NewJob(JobID(r.ID), JobType, Payload{RaffleID: r.ID}, runAt)
	if err != nil {
		return err
	}
	return s.Queue.Enqueue(ctx, job)
}

// HandleJob is the queue handler for settle jobs.
func (s *Service) HandleJob(ctx context.Context, job queue.Job) error {
	var p Payload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(fmt.Errorf("decode settle payload: %w", err))
	}
	return s.Settle(ctx, p.RaffleID)
}

// Settle draws the winner of an ended raffle. It returns queue.Defer when the
// raffle has not ended and a permanent error when it has no tickets. Losing
// the race to another settler is not an error.
func (s *Service) Settle(ctx context.Context, raffleID int64) error {
	log := s.log.With(zap.Int64("raffle_id", raffleID))

	r, err := s.Raffles.GetByID(ctx, raffleID)
	if err != nil {
		if models.IsNotFound(err) {
			return queue.Permanent(err)
		}
		s.observer(OutcomeError)
		return err
	}

	now := s.now()
	switch err := raffle.CanSettle(r, now); {
	case errors.Is(err, models.ErrAlreadySettled):
		log.Info("raffle already settled")
		s.observer(OutcomeAlreadySettled)
		return nil
	case errors.Is(err, models.ErrNotEnded):
		s.observer(OutcomeDeferred)
		return queue.Defer(r.EndDate, "raffle has not ended")
	}

	tickets, err := s.Tickets.ListByRaffle(ctx, r.ID)
	if err != nil {
		s.observer(OutcomeError)
		return err
	}

	result, err := raffle.SelectWinner(r.ID, tickets, s.Drawer)
	if err != nil {
		if errors.Is(err, models.ErrNoTickets) {
			s.observer(OutcomeNoTickets)
			s.markFailed(ctx, r.ID, err.Error())
			return queue.Permanent(err)
		}
		s.observer(OutcomeError)
		return err
	}

	outcome := models.SettlementOutcome{
		WinnerID:         result.WinnerID(),
		WinningTicketID:  result.Ticket.ID,
		DrawSeed:         result.Draw.Seed,
		DrawValue:        result.Draw.Value,
		DrawTotal:        result.Draw.Total,
		SettledAt:        now,
		ApprovalDeadline: raffle.ApprovalDeadline(now, s.cfg.ApprovalWindow),
	}

	err = s.Raffles.CompleteSettlement(ctx, r.ID, r.SettlementVersion, outcome)
	if err != nil {
		if errors.Is(err, models.ErrAlreadySettled) {
			log.Info("raffle settled concurrently, dropping result")
			s.observer(OutcomeLostRace)
			return nil
		}
		s.observer(OutcomeError)
		return err
	}

	log.Info("raffle settled",
		zap.Int64("winner_id", outcome.WinnerID),
		zap.Int64("ticket_id", outcome.WinningTicketID),
		zap.Int64("draw", outcome.DrawValue),
		zap.Int64("total", outcome.DrawTotal),
	)
	s.observer(OutcomeSettled)
	s.announce(ctx, r, outcome)
	return nil
}

func (s *Service) announce(ctx context.Context, r *models.Raffle, o models.SettlementOutcome) {
	if err := s.Cache.Delete(ctx, cache.KeyActiveRaffles); err != nil {
		s.log.Warn("failed to invalidate raffle cache", zap.Error(err))
	}

	s.Audit.Record(ctx, audit.NewEvent(audit.ActionRaffleSettled, audit.EntityRaffle, r.ID, nil, map[string]interface{}{
		"winner_id":         o.WinnerID,
		"winning_ticket_id": o.WinningTicketID,
		"draw_seed":         o.DrawSeed,
		"draw_value":        o.DrawValue,
		"draw_total":        o.DrawTotal,
	}))

	s.Hub.Broadcast(ws.EventRaffleSettled, map[string]interface{}{
		"raffleId":        r.ID,
		"winnerId":        o.WinnerID,
		"winningTicketId": o.WinningTicketID,
		"drawValue":       o.DrawValue,
		"drawTotal":       o.DrawTotal,
	})

	mail := &models.MailMessage{
		ToUserID: o.WinnerID,
		Subject:  "You won " + r.Title,
		Body: fmt.Sprintf("Your ticket #%d won raffle #%d (%s). Unit %d of %d was drawn. "+
			"Approve the result from the raffle page to complete the handover.",
			o.WinningTicketID, r.ID, r.Title, o.DrawValue, o.DrawTotal),
	}
	if err := s.Mail.Create(ctx, mail); err != nil {
		s.log.Error("failed to notify raffle winner", zap.Int64("raffle_id", r.ID), zap.Error(err))
	}
}

func (s *Service) markFailed(ctx context.Context, raffleID int64, reason string) {
	if err := s.Raffles.MarkSettlementFailed(ctx, raffleID, reason); err != nil {
		s.log.Error("failed to mark settlement failed", zap.Int64("raffle_id", raffleID), zap.Error(err))
		return
	}
	s.log.Warn("raffle settlement failed", zap.Int64("raffle_id", raffleID), zap.String("reason", reason))
	s.Audit.Record(ctx, audit.NewEvent(audit.ActionRaffleFailed, audit.EntityRaffle, raffleID, nil,
		map[string]interface{}{"reason": reason}))
}

// HandleFailure is the queue failure hook: a settle job that ran out of
// retries parks its raffle as failed for an admin to retrigger.
func (s *Service) HandleFailure(ctx context.Context, job queue.Job, err error) {
	if job.Type != JobType {
		return
	}
	// already handled in Settle
	if errors.Is(err, models.ErrNoTickets) || models.IsNotFound(err) {
		return
	}

	var p Payload
	if derr := job.Decode(&p); derr != nil {
		return
	}
	s.observer(OutcomeFailed)
	s.markFailed(ctx, p.RaffleID, err.Error())
}

// Retrigger resets a failed or stuck raffle to pending and enqueues it again.
func (s *Service) Retrigger(ctx context.Context, raffleID int64, adminID int64) (*models.Raffle, error) {
	r, err := s.Raffles.ResetSettlement(ctx, raffleID)
	if err != nil {
		return nil, err
	}
	if err := s.Schedule(ctx, r); err != nil {
		return nil, fmt.Errorf("schedule settlement: %w", err)
	}

	s.Audit.Record(ctx, audit.NewEvent(audit.ActionSettlementRetried, audit.EntityRaffle, r.ID, &adminID, nil))
	return r, nil
}

// EnqueuePending schedules every ended raffle still waiting for a winner.
func (s *Service) EnqueuePending(ctx context.Context) (int, error) {
	raffles, err := s.Raffles.ListPendingSettlement(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	n := 0
	for i := range raffles {
		if err := s.Schedule(ctx, &raffles[i]); err != nil {
			s.log.Error("failed to enqueue settlement", zap.Int64("raffle_id", raffles[i].ID), zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// SweepForfeitures forfeits settled raffles whose approval deadline passed
// without both approvals. It does nothing when the approval window is disabled.
func (s *Service) SweepForfeitures(ctx context.Context) ([]int64, error) {
	if s.cfg.ApprovalWindow <= 0 {
		return nil, nil
	}

	ids, err := s.Raffles.ForfeitExpired(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		s.log.Info("raffle forfeited", zap.Int64("raffle_id", id))
		s.Audit.Record(ctx, audit.NewEvent(audit.ActionRaffleForfeited, audit.EntityRaffle, id, nil, nil))
		s.Hub.Broadcast(ws.EventRaffleForfeited, map[string]int64{"raffleId": id})
	}
	if len(ids) > 0 {
		if err := s.Cache.Delete(ctx, cache.KeyActiveRaffles); err != nil {
			s.log.Warn("failed to invalidate raffle cache", zap.Error(err))
		}
	}
	return ids, nil
}

// Start enqueues pending raffles once and then runs the cron sweeps until Stop.
func (s *Service) Start(ctx context.Context) error {
	c := cron.New()

	if _, err := c.AddFunc(s.cfg.PollSpec, func() {
		defer logger.Recover(s.log, "settlement poller")
		if n, err := s.EnqueuePending(ctx); err != nil {
			s.log.Error("settlement poll failed", zap.Error(err))
		} else if n > 0 {
			s.log.Info("enqueued pending settlements", zap.Int("count", n))
		}
	}); err != nil {
		return fmt.Errorf("invalid settlement poll spec %q: %w", s.cfg.PollSpec, err)
	}

	if s.cfg.ApprovalWindow > 0 {
		if _, err := c.AddFunc(s.cfg.ForfeitureSpec, func() {
			defer logger.Recover(s.log, "forfeiture sweep")
			if _, err := s.SweepForfeitures(ctx); err != nil {
				s.log.Error("forfeiture sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("invalid forfeiture spec %q: %w", s.cfg.ForfeitureSpec, err)
		}
	}

	if _, err := s.EnqueuePending(ctx); err != nil {
		s.log.Error("initial settlement poll failed", zap.Error(err))
	}

	s.cron = c
	c.Start()
	s.log.Info("settlement scheduler started",
		zap.String("poll_spec", s.cfg.PollSpec),
		zap.Duration("approval_window", s.cfg.ApprovalWindow),
	)
	return nil
}

// Stop halts the cron sweeps and waits for a running sweep to finish.
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.log.Info("settlement scheduler stopped")
}
