package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// TransactionRepository answers whether a payment hash was already spent anywhere.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// IsUsed reports whether hash backs any raffle, ticket, donation or contribution.
func (r *TransactionRepository) IsUsed(ctx context.Context, hash string) (bool, error) {
	var used bool
	err := r.db.GetContext(ctx, &used,
		`SELECT EXISTS (SELECT 1 FROM raffles WHERE transaction_hash = $1)
		     OR EXISTS (SELECT 1 FROM tickets WHERE transaction_hash = $1)
		     OR EXISTS (SELECT 1 FROM donations WHERE transaction_hash = $1)
		     OR EXISTS (SELECT 1 FROM donation_contributions WHERE transaction_hash = $1)`,
		strings.ToLower(hash))
	if err != nil {
		return false, fmt.Errorf("check transaction hash: %w", err)
	}
	return used, nil
}
