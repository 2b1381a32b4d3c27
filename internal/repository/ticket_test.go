package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duxxan-platform/internal/models"
)

const (
	lockRaffleSQL   = `SELECT is_active, end_date, max_tickets, tickets_sold, winner_id\s+FROM raffles WHERE id = \$1 FOR UPDATE`
	bumpSoldSQL     = `UPDATE raffles SET tickets_sold = tickets_sold \+ \$1`
	insertTicketSQL = `INSERT INTO tickets \(raffle_id, user_id, quantity, total_amount, transaction_hash\)`
	testTxHash      = "0x00000000000000000000000000000000000000000000000000000000000000aa"
)

func raffleLockRows(active bool, end time.Time, max, sold int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"is_active", "end_date", "max_tickets", "tickets_sold", "winner_id"}).
		AddRow(active, end, max, sold, nil)
}

func newTicket(qty int) *models.Ticket {
	return &models.Ticket{
		RaffleID:        1,
		UserID:          7,
		Quantity:        qty,
		TotalAmount:     decimal.NewFromInt(int64(qty * 10)),
		TransactionHash: testTxHash,
	}
}

func TestTicketPurchase_IncrementsSoldByQuantity(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)
	now := time.Now()
	created := now.Add(time.Millisecond)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRaffleSQL).WithArgs(int64(1)).
		WillReturnRows(raffleLockRows(true, now.Add(time.Hour), 100, 3))
	mock.ExpectExec(bumpSoldSQL).WithArgs(7, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTicketSQL).
		WithArgs(int64(1), int64(7), 7, decimal.NewFromInt(70), testTxHash).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(2), created))
	mock.ExpectCommit()

	ticket := newTicket(7)
	require.NoError(t, repo.Purchase(context.Background(), ticket, now))
	assert.Equal(t, int64(2), ticket.ID)
	assert.Equal(t, created, ticket.CreatedAt)
}

func TestTicketPurchase_FillsExactlyToMax(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(lockRaffleSQL).WillReturnRows(raffleLockRows(true, now.Add(time.Hour), 10, 7))
	mock.ExpectExec(bumpSoldSQL).WithArgs(3, int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTicketSQL).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))
	mock.ExpectCommit()

	require.NoError(t, repo.Purchase(context.Background(), newTicket(3), now))
}

func TestTicketPurchase_RejectsWithoutTouchingLedger(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name string
		rows *sqlmock.Rows
		qty  int
		want error
	}{
		{"sold out", raffleLockRows(true, now.Add(time.Hour), 10, 8), 3, models.ErrSoldOut},
		{"ended", raffleLockRows(true, now.Add(-time.Second), 10, 0), 1, models.ErrRaffleClosed},
		{"ends now", raffleLockRows(true, now, 10, 0), 1, models.ErrRaffleClosed},
		{"inactive", raffleLockRows(false, now.Add(time.Hour), 10, 0), 1, models.ErrRaffleClosed},
		{
			"settled",
			sqlmock.NewRows([]string{"is_active", "end_date", "max_tickets", "tickets_sold", "winner_id"}).
				AddRow(true, now.Add(time.Hour), 10, 0, int64(3)),
			1, models.ErrRaffleClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewTicketRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(lockRaffleSQL).WillReturnRows(tt.rows)
			mock.ExpectRollback()

			err := repo.Purchase(context.Background(), newTicket(tt.qty), now)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTicketPurchase_UnknownRaffle(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockRaffleSQL).WillReturnRows(
		sqlmock.NewRows([]string{"is_active", "end_date", "max_tickets", "tickets_sold", "winner_id"}))
	mock.ExpectRollback()

	err := repo.Purchase(context.Background(), newTicket(1), time.Now())
	assert.ErrorIs(t, err, models.ErrRaffleNotFound)
}

func TestTicketPurchase_DuplicateHashRollsBackCounter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(lockRaffleSQL).WillReturnRows(raffleLockRows(true, now.Add(time.Hour), 100, 0))
	mock.ExpectExec(bumpSoldSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTicketSQL).WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectRollback()

	err := repo.Purchase(context.Background(), newTicket(2), now)
	assert.ErrorIs(t, err, models.ErrDuplicateTransaction)
}

func TestTicketPurchase_InsertFailureRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(lockRaffleSQL).WillReturnRows(raffleLockRows(true, now.Add(time.Hour), 100, 0))
	mock.ExpectExec(bumpSoldSQL).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(insertTicketSQL).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Purchase(context.Background(), newTicket(2), now)
	require.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrDuplicateTransaction)
}

func TestTicketListByRaffle_StoredOrder(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "raffle_id", "user_id", "quantity", "total_amount", "transaction_hash", "created_at"}).
		AddRow(int64(1), int64(5), int64(11), 3, "30", "0xa", now).
		AddRow(int64(2), int64(5), int64(12), 7, "70", "0xb", now)
	mock.ExpectQuery(`FROM tickets WHERE raffle_id = \$1 ORDER BY id ASC`).WithArgs(int64(5)).WillReturnRows(rows)

	tickets, err := repo.ListByRaffle(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, int64(1), tickets[0].ID)
	assert.Equal(t, 3, tickets[0].Quantity)
	assert.True(t, tickets[1].TotalAmount.Equal(decimal.NewFromInt(70)))
}

func TestTicketCheckConsistency(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTicketRepository(db)

	mock.ExpectQuery(`HAVING r.tickets_sold <> COALESCE\(SUM\(t.quantity\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ids, err := repo.CheckConsistency(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
