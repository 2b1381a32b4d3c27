package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"duxxan-platform/internal/models"
)

const ticketColumns = `id, raffle_id, user_id, quantity, total_amount, transaction_hash, created_at`

// TicketRepository is the append-only ticket ledger.
type TicketRepository struct {
	db *sqlx.DB
}

func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

// Purchase records a ticket and bumps raffles.tickets_sold in one transaction.
// The raffle row is locked so concurrent purchases cannot oversell.
func (r *TicketRepository) Purchase(ctx context.Context, t *models.Ticket, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var raffle struct {
		IsActive    bool      `db:"is_active"`
		EndDate     time.Time `db:"end_date"`
		MaxTickets  int       `db:"max_tickets"`
		TicketsSold int       `db:"tickets_sold"`
		WinnerID    *int64    `db:"winner_id"`
	}
	err = tx.GetContext(ctx, &raffle,
		`SELECT is_active, end_date, max_tickets, tickets_sold, winner_id
		 FROM raffles WHERE id = $1 FOR UPDATE`, t.RaffleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrRaffleNotFound
		}
		return fmt.Errorf("lock raffle: %w", err)
	}

	if !raffle.IsActive || raffle.WinnerID != nil || !now.Before(raffle.EndDate) {
		return models.ErrRaffleClosed
	}
	if raffle.TicketsSold+t.Quantity > raffle.MaxTickets {
		return models.ErrSoldOut
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE raffles SET tickets_sold = tickets_sold + $1, updated_at = NOW() WHERE id = $2`,
		t.Quantity, t.RaffleID)
	if err != nil {
		return fmt.Errorf("update tickets sold: %w", err)
	}

	err = tx.QueryRowxContext(ctx,
		`INSERT INTO tickets (raffle_id, user_id, quantity, total_amount, transaction_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		t.RaffleID, t.UserID, t.Quantity, t.TotalAmount, t.TransactionHash,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert ticket: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListByRaffle returns a raffle's tickets in stored order.
func (r *TicketRepository) ListByRaffle(ctx context.Context, raffleID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := r.db.SelectContext(ctx, &tickets,
		`SELECT `+ticketColumns+` FROM tickets WHERE raffle_id = $1 ORDER BY id ASC`, raffleID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// ListByUser returns a user's tickets, newest first.
func (r *TicketRepository) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	err := r.db.SelectContext(ctx, &tickets,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user tickets: %w", err)
	}
	return tickets, nil
}

// CheckConsistency returns raffle ids whose tickets_sold differs from the ledger sum.
func (r *TicketRepository) CheckConsistency(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids,
		`SELECT r.id FROM raffles r
		 LEFT JOIN tickets t ON t.raffle_id = r.id
		 GROUP BY r.id, r.tickets_sold
		 HAVING r.tickets_sold <> COALESCE(SUM(t.quantity), 0)
		 ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("check ledger consistency: %w", err)
	}
	return ids, nil
}
