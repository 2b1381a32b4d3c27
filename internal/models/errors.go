package models

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Lookup errors
	ErrUserNotFound         = errors.New("user not found")
	ErrRaffleNotFound       = errors.New("raffle not found")
	ErrDonationNotFound     = errors.New("donation not found")
	ErrContributionNotFound = errors.New("contribution not found")
	ErrChannelNotFound      = errors.New("channel not found")
	ErrMailNotFound         = errors.New("mail not found")

	// Payment errors
	ErrPaymentNotVerified   = errors.New("payment transaction could not be verified")
	ErrDuplicateTransaction = errors.New("transaction hash has already been used")
	ErrCardPaymentsDisabled = errors.New("card payments are not available")
	ErrGateway              = errors.New("payment gateway error")

	// Raffle lifecycle errors
	ErrRaffleClosed     = errors.New("raffle is not accepting tickets")
	ErrSoldOut          = errors.New("not enough tickets left")
	ErrNotEnded         = errors.New("raffle has not ended yet")
	ErrNoTickets        = errors.New("no tickets found")
	ErrAlreadySettled   = errors.New("raffle is already settled")
	ErrNotSettled       = errors.New("raffle has no winner yet")
	ErrApprovalClosed   = errors.New("raffle approval window is closed")
	ErrNotParticipant   = errors.New("only the creator or the winner can approve")
	ErrDonationInactive = errors.New("donation is not accepting contributions")

	// Auth errors
	ErrMissingWallet      = errors.New("wallet address header is required")
	ErrInvalidWallet      = errors.New("invalid wallet address")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrRaffleNotFound) ||
		errors.Is(err, ErrDonationNotFound) ||
		errors.Is(err, ErrContributionNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrMailNotFound)
}

// IsValidation checks if the error should be reported as a bad request
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrPaymentNotVerified) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrInvalidWallet)
}

// IsConflict checks if the error is a state conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrRaffleClosed) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrNotEnded) ||
		errors.Is(err, ErrNoTickets) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrNotSettled) ||
		errors.Is(err, ErrApprovalClosed) ||
		errors.Is(err, ErrDonationInactive)
}

// IsUnauthorized checks if the caller failed to identify itself
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrMissingWallet) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken)
}

// IsUnavailable checks if a dependency of the request is not usable right now
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrCardPaymentsDisabled) ||
		errors.Is(err, ErrGateway)
}

// IsForbidden checks if the caller is identified but not allowed
func IsForbidden(err error) bool {
	return errors.Is(err, ErrNotParticipant)
}
