// Package repository holds the Postgres data access for every entity.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

// Postgres error codes we translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// Store bundles every repository over one connection pool.
type Store struct {
	Users        *UserRepository
	Admins       *AdminRepository
	Raffles      *RaffleRepository
	Tickets      *TicketRepository
	Transactions *TransactionRepository
	Donations    *DonationRepository
	Channels     *ChannelRepository
	Mail         *MailRepository
}

// NewStore builds every repository on db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Users:        NewUserRepository(db),
		Admins:       NewAdminRepository(db),
		Raffles:      NewRaffleRepository(db),
		Tickets:      NewTicketRepository(db),
		Transactions: NewTransactionRepository(db),
		Donations:    NewDonationRepository(db),
		Channels:     NewChannelRepository(db),
		Mail:         NewMailRepository(db),
	}
}
