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

const raffleColumns = `id, creator_id, title, description, prize_value, ticket_price, max_tickets,
	tickets_sold, end_date, is_active, winner_id, is_approved_by_creator, is_approved_by_winner,
	transaction_hash, settlement_status, settlement_version, settlement_error, winning_ticket_id,
	draw_seed, draw_value, draw_total, settled_at, approval_deadline, forfeited_at,
	created_at, updated_at`

type RaffleRepository struct {
	db *sqlx.DB
}

func NewRaffleRepository(db *sqlx.DB) *RaffleRepository {
	return &RaffleRepository{db: db}
}

// Create inserts a raffle and fills the generated columns.
func (r *RaffleRepository) Create(ctx context.Context, raffle *models.Raffle) error {
	err := r.db.GetContext(ctx, raffle,
		`INSERT INTO raffles (creator_id, title, description, prize_value, ticket_price,
		                      max_tickets, end_date, transaction_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+raffleColumns,
		raffle.CreatorID, raffle.Title, raffle.Description, raffle.PrizeValue, raffle.TicketPrice,
		raffle.MaxTickets, raffle.EndDate, raffle.TransactionHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert raffle: %w", err)
	}
	return nil
}

func (r *RaffleRepository) GetByID(ctx context.Context, id int64) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.db.GetContext(ctx, &raffle, `SELECT `+raffleColumns+` FROM raffles WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRaffleNotFound
		}
		return nil, fmt.Errorf("get raffle: %w", err)
	}
	return &raffle, nil
}

// ListActive returns raffles still selling tickets, soonest ending first.
func (r *RaffleRepository) ListActive(ctx context.Context, now time.Time) ([]models.Raffle, error) {
	raffles := []models.Raffle{}
	err := r.db.SelectContext(ctx, &raffles,
		`SELECT `+raffleColumns+` FROM raffles
		 WHERE is_active = TRUE AND winner_id IS NULL AND end_date > $1
		 ORDER BY end_date ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list active raffles: %w", err)
	}
	return raffles, nil
}

// ListByCreator returns every raffle a user created, newest first.
func (r *RaffleRepository) ListByCreator(ctx context.Context, creatorID int64) ([]models.Raffle, error) {
	raffles := []models.Raffle{}
	err := r.db.SelectContext(ctx, &raffles,
		`SELECT `+raffleColumns+` FROM raffles WHERE creator_id = $1 ORDER BY id DESC`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list creator raffles: %w", err)
	}
	return raffles, nil
}

// ListPendingSettlement returns ended raffles still waiting for a winner.
func (r *RaffleRepository) ListPendingSettlement(ctx context.Context, now time.Time, limit int) ([]models.Raffle, error) {
	raffles := []models.Raffle{}
	err := r.db.SelectContext(ctx, &raffles,
		`SELECT `+raffleColumns+` FROM raffles
		 WHERE winner_id IS NULL AND settlement_status = 'pending' AND end_date <= $1
		 ORDER BY end_date ASC
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending settlement: %w", err)
	}
	return raffles, nil
}

// CompleteSettlement writes the draw outcome if nobody settled the raffle since
// version was read. A lost race returns ErrAlreadySettled.
func (r *RaffleRepository) CompleteSettlement(ctx context.Context, id, version int64, o models.SettlementOutcome) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE raffles SET
		     winner_id = $1,
		     winning_ticket_id = $2,
		     draw_seed = $3,
		     draw_value = $4,
		     draw_total = $5,
		     settled_at = $6,
		     approval_deadline = $7,
		     is_active = FALSE,
		     settlement_status = 'settled',
		     settlement_error = NULL,
		     settlement_version = settlement_version + 1,
		     updated_at = NOW()
		 WHERE id = $8 AND settlement_version = $9 AND winner_id IS NULL`,
		o.WinnerID, o.WinningTicketID, o.DrawSeed, o.DrawValue, o.DrawTotal,
		o.SettledAt, o.ApprovalDeadline, id, version,
	)
	if err != nil {
		return fmt.Errorf("complete settlement: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete settlement: %w", err)
	}
	if rows == 0 {
		return models.ErrAlreadySettled
	}
	return nil
}

// MarkSettlementFailed parks an unsettled raffle for manual intervention.
func (r *RaffleRepository) MarkSettlementFailed(ctx context.Context, id int64, reason string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE raffles SET
		     settlement_status = 'failed',
		     settlement_error = $1,
		     settlement_version = settlement_version + 1,
		     updated_at = NOW()
		 WHERE id = $2 AND winner_id IS NULL`, reason, id)
	if err != nil {
		return fmt.Errorf("mark settlement failed: %w", err)
	}
	return nil
}

// ResetSettlement puts an unsettled raffle back into the pending state.
func (r *RaffleRepository) ResetSettlement(ctx context.Context, id int64) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.db.GetContext(ctx, &raffle,
		`UPDATE raffles SET
		     settlement_status = 'pending',
		     settlement_error = NULL,
		     updated_at = NOW()
		 WHERE id = $1 AND winner_id IS NULL
		 RETURNING `+raffleColumns, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, models.ErrAlreadySettled
		}
		return nil, fmt.Errorf("reset settlement: %w", err)
	}
	return &raffle, nil
}

// SetApproval ORs the given flags into the stored ones, so re-approving is a no-op.
func (r *RaffleRepository) SetApproval(ctx context.Context, id int64, creator, winner bool) (*models.Raffle, error) {
	var raffle models.Raffle
	err := r.db.GetContext(ctx, &raffle,
		`UPDATE raffles SET
		     is_approved_by_creator = is_approved_by_creator OR $1,
		     is_approved_by_winner = is_approved_by_winner OR $2,
		     updated_at = NOW()
		 WHERE id = $3 AND winner_id IS NOT NULL AND forfeited_at IS NULL
		 RETURNING `+raffleColumns, creator, winner, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrApprovalClosed
		}
		return nil, fmt.Errorf("set approval: %w", err)
	}
	return &raffle, nil
}

// ForfeitExpired marks settled raffles whose approval deadline passed without
// both approvals and returns their ids.
func (r *RaffleRepository) ForfeitExpired(ctx context.Context, now time.Time) ([]int64, error) {
	ids := []int64{}
	err := r.db.SelectContext(ctx, &ids,
		`UPDATE raffles SET forfeited_at = $1, updated_at = NOW()
		 WHERE forfeited_at IS NULL
		   AND winner_id IS NOT NULL
		   AND approval_deadline IS NOT NULL
		   AND approval_deadline < $1
		   AND NOT (is_approved_by_creator AND is_approved_by_winner)
		 RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("forfeit expired raffles: %w", err)
	}
	return ids, nil
}

// Stats summarises the platform for the admin dashboard.
func (r *RaffleRepository) Stats(ctx context.Context) (*models.PlatformStats, error) {
	var s models.PlatformStats
	err := r.db.GetContext(ctx, &s,
		`SELECT
		     (SELECT COUNT(*) FROM users) AS users,
		     (SELECT COUNT(*) FROM raffles) AS raffles,
		     (SELECT COUNT(*) FROM raffles WHERE is_active AND winner_id IS NULL) AS active_raffles,
		     (SELECT COUNT(*) FROM raffles WHERE settlement_status = 'settled') AS settled_raffles,
		     (SELECT COUNT(*) FROM raffles WHERE settlement_status = 'failed') AS failed_raffles,
		     (SELECT COALESCE(SUM(quantity), 0) FROM tickets) AS tickets,
		     (SELECT COUNT(*) FROM donations) AS donations,
		     (SELECT COUNT(*) FROM donation_contributions WHERE status = 'settled') AS contributions,
		     (SELECT COUNT(*) FROM channels) AS channels`)
	if err != nil {
		return nil, fmt.Errorf("platform stats: %w", err)
	}
	return &s, nil
}
