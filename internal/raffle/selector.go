package raffle

import (
	"fmt"

	"duxxan-platform/internal/models"
)

// Result is the outcome of a winner selection.
type Result struct {
	Ticket models.Ticket
	Draw   Draw
}

// WinnerID returns the owner of the winning ticket.
func (r Result) WinnerID() int64 {
	return r.Ticket.UserID
}

// TotalUnits sums the quantity of every ticket.
func TotalUnits(tickets []models.Ticket) int64 {
	var total int64
	for _, t := range tickets {
		total += int64(t.Quantity)
	}
	return total
}

// SelectWinner draws one unit in [1, total] and walks the tickets in stored
// order; the first ticket whose cumulative quantity reaches the draw wins.
func SelectWinner(raffleID int64, tickets []models.Ticket, drawer Drawer) (Result, error) {
	total := TotalUnits(tickets)
	if total <= 0 {
		return Result{}, models.ErrNoTickets
	}

	draw, err := drawer.Draw(raffleID, total)
	if err != nil {
		return Result{}, fmt.Errorf("draw: %w", err)
	}

	ticket, err := Pick(tickets, draw.Value)
	if err != nil {
		return Result{}, err
	}

	return Result{Ticket: ticket, Draw: draw}, nil
}

// Pick returns the ticket holding unit number draw (1-based).
func Pick(tickets []models.Ticket, draw int64) (models.Ticket, error) {
	total := TotalUnits(tickets)
	if total <= 0 {
		return models.Ticket{}, models.ErrNoTickets
	}
	if draw < 1 || draw > total {
		return models.Ticket{}, fmt.Errorf("draw %d out of range [1, %d]", draw, total)
	}

	var cumulative int64
	for _, t := range tickets {
		cumulative += int64(t.Quantity)
		if cumulative >= draw {
			return t, nil
		}
	}

	// unreachable while draw <= total
	return models.Ticket{}, fmt.Errorf("draw %d not covered by tickets", draw)
}
