package raffle

import (
	"time"

	"duxxan-platform/internal/models"
)

// State is a raffle lifecycle state derived from the stored row.
type State string

const (
	StateOpen             State = "open"
	StateEndedUnsettled   State = "ended_unsettled"
	StateSettled          State = "settled"
	StateAwaitingApproval State = "awaiting_approval"
	StateMutuallyApproved State = "mutually_approved"
	StateForfeited        State = "forfeited"
)

// StateOf derives the lifecycle state of r at time now.
func StateOf(r *models.Raffle, now time.Time) State {
	if r.ForfeitedAt != nil {
		return StateForfeited
	}

	if r.WinnerID == nil {
		if r.IsActive && now.Before(r.EndDate) {
			return StateOpen
		}
		return StateEndedUnsettled
	}

	switch {
	case r.IsApprovedByCreator && r.IsApprovedByWinner:
		return StateMutuallyApproved
	case r.IsApprovedByCreator || r.IsApprovedByWinner:
		return StateAwaitingApproval
	default:
		return StateSettled
	}
}

// CanPurchase returns nil when tickets may still be bought.
func CanPurchase(r *models.Raffle, now time.Time) error {
	if StateOf(r, now) != StateOpen {
		return models.ErrRaffleClosed
	}
	return nil
}

// CanSettle returns nil when the raffle has ended and has no winner yet.
func CanSettle(r *models.Raffle, now time.Time) error {
	if r.WinnerID != nil {
		return models.ErrAlreadySettled
	}
	if now.Before(r.EndDate) {
		return models.ErrNotEnded
	}
	return nil
}

// Approval says which flags a caller is entitled to set.
type Approval struct {
	Creator bool
	Winner  bool
}

// CanApprove resolves the approval flags userID may set on r.
func CanApprove(r *models.Raffle, userID int64, now time.Time) (Approval, error) {
	if r.ForfeitedAt != nil {
		return Approval{}, models.ErrApprovalClosed
	}
	if r.WinnerID == nil {
		return Approval{}, models.ErrNotSettled
	}

	a := Approval{
		Creator: r.CreatorID == userID,
		Winner:  *r.WinnerID == userID,
	}
	if !a.Creator && !a.Winner {
		return Approval{}, models.ErrNotParticipant
	}

	if r.ApprovalDeadline != nil && now.After(*r.ApprovalDeadline) &&
		!(r.IsApprovedByCreator && r.IsApprovedByWinner) {
		return Approval{}, models.ErrApprovalClosed
	}

	return a, nil
}

// ShouldForfeit reports whether the approval window expired without both approvals.
func ShouldForfeit(r *models.Raffle, now time.Time) bool {
	if r.ForfeitedAt != nil || r.WinnerID == nil || r.ApprovalDeadline == nil {
		return false
	}
	if r.IsApprovedByCreator && r.IsApprovedByWinner {
		return false
	}
	return now.After(*r.ApprovalDeadline)
}

// ApprovalDeadline returns settledAt+window, or nil when forfeiture is disabled.
func ApprovalDeadline(settledAt time.Time, window time.Duration) *time.Time {
	if window <= 0 {
		return nil
	}
	d := settledAt.Add(window)
	return &d
}
