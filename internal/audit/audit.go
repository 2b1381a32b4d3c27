// Package audit records who did what to which raffle, donation or payment.
// Recording is best-effort: a failing sink is logged and never fails the caller.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"duxxan-platform/internal/models"
)

// Actions
const (
	ActionRaffleCreated      = "raffle.created"
	ActionRaffleSettled      = "raffle.settled"
	ActionRaffleFailed       = "raffle.settlement_failed"
	ActionRaffleApproved     = "raffle.approved"
	ActionRaffleForfeited    = "raffle.forfeited"
	ActionSettlementRetried  = "raffle.settlement_retried"
	ActionTicketPurchased    = "ticket.purchased"
	ActionDonationCreated    = "donation.created"
	ActionContributionPaid   = "donation.contribution"
	ActionPaymentRejected    = "payment.rejected"
	ActionAdminLogin         = "admin.login"
	ActionAdminRaffleCreated = "admin.raffle_created"
)

// Entity types
const (
	EntityRaffle   = "raffle"
	EntityTicket   = "ticket"
	EntityDonation = "donation"
	EntityAdmin    = "admin"
)

// Sink stores audit events.
type Sink interface {
	Record(ctx context.Context, ev models.AuditEvent)
}

// NewEvent builds an event with a fresh id and timestamp.
func NewEvent(action, entityType string, entityID int64, actorID *int64, details map[string]interface{}) models.AuditEvent {
	return models.AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
}

// SupabaseSink inserts events into a Supabase (PostgREST) table.
type SupabaseSink struct {
	client *supabase.Client
	table  string
	log    *zap.Logger
}

// NewSupabaseSink connects to the Supabase project at url.
func NewSupabaseSink(url, key, table string, log *zap.Logger) (*SupabaseSink, error) {
	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseSink{client: client, table: table, log: log}, nil
}

func (s *SupabaseSink) Record(_ context.Context, ev models.AuditEvent) {
	_, _, err := s.client.From(s.table).Insert(ev, false, "", "minimal", "").Execute()
	if err != nil {
		s.log.Error("failed to record audit event",
			zap.String("action", ev.Action),
			zap.String("entity_type", ev.EntityType),
			zap.Int64("entity_id", ev.EntityID),
			zap.Error(err),
		)
	}
}

// LogSink writes events to the process log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, ev models.AuditEvent) {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("action", ev.Action),
		zap.String("entity_type", ev.EntityType),
		zap.Int64("entity_id", ev.EntityID),
		zap.Time("at", ev.CreatedAt),
	}
	if ev.ActorID != nil {
		fields = append(fields, zap.Int64("actor_id", *ev.ActorID))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("details", ev.Details))
	}
	s.log.Info("audit", fields...)
}
