package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultCreationFee is the USDT fee for opening a raffle.
var DefaultCreationFee = decimal.NewFromInt(25)

// TicketCost is the expected payment for qty tickets at price.
func TicketCost(price decimal.Decimal, qty int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(qty)))
}

// ToBaseUnits converts a token amount to its smallest unit, rounding up so a
// fractional remainder can never be underpaid.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Ceil().BigInt()
}
