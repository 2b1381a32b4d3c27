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

const donationColumns = `id, creator_id, title, description, goal_amount, current_amount, donor_count,
	organization_type, commission_rate, startup_fee, end_date, is_active, transaction_hash,
	created_at, updated_at`

const contributionColumns = `id, donation_id, user_id, amount, commission_amount, net_amount,
	payment_method, transaction_hash, order_id, payment_gateway_tx_id, status, created_at`

type DonationRepository struct {
	db *sqlx.DB
}

func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, d *models.Donation) error {
	err := r.db.GetContext(ctx, d,
		`INSERT INTO donations (creator_id, title, description, goal_amount, organization_type,
		                        commission_rate, startup_fee, end_date, transaction_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+donationColumns,
		d.CreatorID, d.Title, d.Description, d.GoalAmount, d.OrganizationType,
		d.CommissionRate, d.StartupFee, d.EndDate, d.TransactionHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (r *DonationRepository) GetByID(ctx context.Context, id int64) (*models.Donation, error) {
	var d models.Donation
	err := r.db.GetContext(ctx, &d, `SELECT `+donationColumns+` FROM donations WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrDonationNotFound
		}
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return &d, nil
}

// ListActive returns open campaigns, newest first.
func (r *DonationRepository) ListActive(ctx context.Context, now time.Time) ([]models.Donation, error) {
	donations := []models.Donation{}
	err := r.db.SelectContext(ctx, &donations,
		`SELECT `+donationColumns+` FROM donations
		 WHERE is_active = TRUE AND (end_date IS NULL OR end_date > $1)
		 ORDER BY created_at DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("list donations: %w", err)
	}
	return donations, nil
}

func (r *DonationRepository) ListContributions(ctx context.Context, donationID int64) ([]models.DonationContribution, error) {
	contributions := []models.DonationContribution{}
	err := r.db.SelectContext(ctx, &contributions,
		`SELECT `+contributionColumns+` FROM donation_contributions
		 WHERE donation_id = $1 AND status = 'settled'
		 ORDER BY id DESC`, donationID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return contributions, nil
}

// lockOpen locks the donation row and checks it still accepts money.
func lockOpen(ctx context.Context, tx *sqlx.Tx, donationID int64, now time.Time) error {
	var d struct {
		IsActive bool       `db:"is_active"`
		EndDate  *time.Time `db:"end_date"`
	}
	err := tx.GetContext(ctx, &d,
		`SELECT is_active, end_date FROM donations WHERE id = $1 FOR UPDATE`, donationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrDonationNotFound
		}
		return fmt.Errorf("lock donation: %w", err)
	}
	if !d.IsActive || (d.EndDate != nil && !now.Before(*d.EndDate)) {
		return models.ErrDonationInactive
	}
	return nil
}

func applyContribution(ctx context.Context, tx *sqlx.Tx, c *models.DonationContribution) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE donations SET
		     current_amount = current_amount + $1,
		     donor_count = donor_count + 1,
		     updated_at = NOW()
		 WHERE id = $2`, c.Amount, c.DonationID)
	if err != nil {
		return fmt.Errorf("update donation totals: %w", err)
	}
	return nil
}

// AddContribution records a settled on-chain contribution and updates the campaign totals.
func (r *DonationRepository) AddContribution(ctx context.Context, c *models.DonationContribution, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOpen(ctx, tx, c.DonationID, now); err != nil {
		return err
	}

	c.Status = models.ContributionSettled
	err = tx.GetContext(ctx, c,
		`INSERT INTO donation_contributions (donation_id, user_id, amount, commission_amount,
		                                     net_amount, payment_method, transaction_hash, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+contributionColumns,
		c.DonationID, c.UserID, c.Amount, c.CommissionAmount, c.NetAmount,
		c.PaymentMethod, c.TransactionHash, c.Status,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateTransaction
		}
		return fmt.Errorf("insert contribution: %w", err)
	}

	if err := applyContribution(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreatePendingContribution stores a card contribution awaiting gateway confirmation.
func (r *DonationRepository) CreatePendingContribution(ctx context.Context, c *models.DonationContribution, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOpen(ctx, tx, c.DonationID, now); err != nil {
		return err
	}

	c.Status = models.ContributionPending
	err = tx.GetContext(ctx, c,
		`INSERT INTO donation_contributions (donation_id, user_id, amount, commission_amount,
		                                     net_amount, payment_method, order_id, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+contributionColumns,
		c.DonationID, c.UserID, c.Amount, c.CommissionAmount, c.NetAmount,
		c.PaymentMethod, c.OrderID, c.Status,
	)
	if err != nil {
		return fmt.Errorf("insert pending contribution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// SettleContribution confirms a pending card contribution exactly once.
// settled is false when the contribution had already been settled.
func (r *DonationRepository) SettleContribution(ctx context.Context, orderID, gatewayTxID string) (c *models.DonationContribution, settled bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing models.DonationContribution
	err = tx.GetContext(ctx, &existing,
		`SELECT `+contributionColumns+` FROM donation_contributions WHERE order_id = $1 FOR UPDATE`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, models.ErrContributionNotFound
		}
		return nil, false, fmt.Errorf("lock contribution: %w", err)
	}

	if existing.Status == models.ContributionSettled {
		return &existing, false, nil
	}

	err = tx.GetContext(ctx, &existing,
		`UPDATE donation_contributions SET status = 'settled', payment_gateway_tx_id = $1
		 WHERE id = $2
		 RETURNING `+contributionColumns, gatewayTxID, existing.ID)
	if err != nil {
		return nil, false, fmt.Errorf("settle contribution: %w", err)
	}

	if err := applyContribution(ctx, tx, &existing); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}
	return &existing, true, nil
}
