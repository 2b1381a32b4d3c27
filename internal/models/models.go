package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// We use 'db' tags for sqlx to map the snake_case columns, and camelCase 'json'
// tags because the web client speaks camelCase.

// User is a wallet-identified platform member.
type User struct {
	ID            int64     `db:"id" json:"id"`
	WalletAddress string    `db:"wallet_address" json:"walletAddress"`
	Username      *string   `db:"username" json:"username"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// AdminUser holds the credentials of a back-office operator.
type AdminUser struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Settlement states stored in raffles.settlement_status.
const (
	SettlementPending = "pending"
	SettlementSettled = "settled"
	SettlementFailed  = "failed"
)

// Raffle is a time-bounded prize pool sold as ticket units.
type Raffle struct {
	ID                  int64           `db:"id" json:"id"`
	CreatorID           int64           `db:"creator_id" json:"creatorId"`
	Title               string          `db:"title" json:"title"`
	Description         string          `db:"description" json:"description"`
	PrizeValue          decimal.Decimal `db:"prize_value" json:"prizeValue"`
	TicketPrice         decimal.Decimal `db:"ticket_price" json:"ticketPrice"`
	MaxTickets          int             `db:"max_tickets" json:"maxTickets"`
	TicketsSold         int             `db:"tickets_sold" json:"ticketsSold"`
	EndDate             time.Time       `db:"end_date" json:"endDate"`
	IsActive            bool            `db:"is_active" json:"isActive"`
	WinnerID            *int64          `db:"winner_id" json:"winnerId"`
	IsApprovedByCreator bool            `db:"is_approved_by_creator" json:"isApprovedByCreator"`
	IsApprovedByWinner  bool            `db:"is_approved_by_winner" json:"isApprovedByWinner"`
	TransactionHash     *string         `db:"transaction_hash" json:"transactionHash"`

	SettlementStatus  string     `db:"settlement_status" json:"settlementStatus"`
	SettlementVersion int64      `db:"settlement_version" json:"-"`
	SettlementError   *string    `db:"settlement_error" json:"settlementError,omitempty"`
	WinningTicketID   *int64     `db:"winning_ticket_id" json:"winningTicketId,omitempty"`
	DrawSeed          *string    `db:"draw_seed" json:"drawSeed,omitempty"`
	DrawValue         *int64     `db:"draw_value" json:"drawValue,omitempty"`
	DrawTotal         *int64     `db:"draw_total" json:"drawTotal,omitempty"`
	SettledAt         *time.Time `db:"settled_at" json:"settledAt,omitempty"`
	ApprovalDeadline  *time.Time `db:"approval_deadline" json:"approvalDeadline,omitempty"`
	ForfeitedAt       *time.Time `db:"forfeited_at" json:"forfeitedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Ticket is an immutable purchase of one or more units in a raffle.
type Ticket struct {
	ID              int64           `db:"id" json:"id"`
	RaffleID        int64           `db:"raffle_id" json:"raffleId"`
	UserID          int64           `db:"user_id" json:"userId"`
	Quantity        int             `db:"quantity" json:"quantity"`
	TotalAmount     decimal.Decimal `db:"total_amount" json:"totalAmount"`
	TransactionHash string          `db:"transaction_hash" json:"transactionHash"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
}

// SettlementOutcome is what a successful draw writes back onto the raffle row.
type SettlementOutcome struct {
	WinnerID         int64
	WinningTicketID  int64
	DrawSeed         string
	DrawValue        int64
	DrawTotal        int64
	SettledAt        time.Time
	ApprovalDeadline *time.Time
}

// Organization types for donation campaigns.
const (
	OrganizationIndividual = "individual"
	OrganizationCorporate  = "corporate"
)

// Donation is a goal-funding campaign.
type Donation struct {
	ID               int64           `db:"id" json:"id"`
	CreatorID        int64           `db:"creator_id" json:"creatorId"`
	Title            string          `db:"title" json:"title"`
	Description      string          `db:"description" json:"description"`
	GoalAmount       decimal.Decimal `db:"goal_amount" json:"goalAmount"`
	CurrentAmount    decimal.Decimal `db:"current_amount" json:"currentAmount"`
	DonorCount       int             `db:"donor_count" json:"donorCount"`
	OrganizationType string          `db:"organization_type" json:"organizationType"`
	CommissionRate   decimal.Decimal `db:"commission_rate" json:"commissionRate"`
	StartupFee       decimal.Decimal `db:"startup_fee" json:"startupFee"`
	EndDate          *time.Time      `db:"end_date" json:"endDate"`
	IsActive         bool            `db:"is_active" json:"isActive"`
	TransactionHash  *string         `db:"transaction_hash" json:"transactionHash"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// Contribution payment methods and statuses.
const (
	PaymentMethodChain = "chain"
	PaymentMethodCard  = "card"

	ContributionPending = "pending"
	ContributionSettled = "settled"
)

// DonationContribution is a single payment towards a donation campaign.
type DonationContribution struct {
	ID                 int64           `db:"id" json:"id"`
	DonationID         int64           `db:"donation_id" json:"donationId"`
	UserID             int64           `db:"user_id" json:"userId"`
	Amount             decimal.Decimal `db:"amount" json:"amount"`
	CommissionAmount   decimal.Decimal `db:"commission_amount" json:"commissionAmount"`
	NetAmount          decimal.Decimal `db:"net_amount" json:"netAmount"`
	PaymentMethod      string          `db:"payment_method" json:"paymentMethod"`
	TransactionHash    *string         `db:"transaction_hash" json:"transactionHash,omitempty"`
	OrderID            *string         `db:"order_id" json:"orderId,omitempty"`
	PaymentGatewayTxID *string         `db:"payment_gateway_tx_id" json:"-"`
	Status             string          `db:"status" json:"status"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
}

// Channel is a community channel users can subscribe to.
type Channel struct {
	ID              int64     `db:"id" json:"id"`
	CreatorID       int64     `db:"creator_id" json:"creatorId"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	Category        string    `db:"category" json:"category"`
	SubscriberCount int       `db:"subscriber_count" json:"subscriberCount"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// MailMessage is an inbox entry. FromUserID is nil for system mail.
type MailMessage struct {
	ID         int64     `db:"id" json:"id"`
	FromUserID *int64    `db:"from_user_id" json:"fromUserId"`
	ToUserID   int64     `db:"to_user_id" json:"toUserId"`
	Subject    string    `db:"subject" json:"subject"`
	Body       string    `db:"body" json:"body"`
	IsRead     bool      `db:"is_read" json:"isRead"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// PlatformStats is the admin dashboard summary.
type PlatformStats struct {
	Users          int64 `db:"users" json:"users"`
	Raffles        int64 `db:"raffles" json:"raffles"`
	ActiveRaffles  int64 `db:"active_raffles" json:"activeRaffles"`
	SettledRaffles int64 `db:"settled_raffles" json:"settledRaffles"`
	FailedRaffles  int64 `db:"failed_raffles" json:"failedRaffles"`
	Tickets        int64 `db:"tickets" json:"tickets"`
	Donations      int64 `db:"donations" json:"donations"`
	Contributions  int64 `db:"contributions" json:"contributions"`
	Channels       int64 `db:"channels" json:"channels"`
}

// AuditEvent is one entry of the append-only audit trail.
type AuditEvent struct {
	ID         string                 `json:"id"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   int64                  `json:"entity_id"`
	ActorID    *int64                 `json:"actor_id,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}
