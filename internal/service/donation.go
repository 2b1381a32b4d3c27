package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"duxxan-platform/internal/audit"
	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/payment"
	ws "duxxan-platform/internal/websocket"
)

type DonationRepo interface {
	Create(ctx context.Context, d *models.Donation) error
	GetByID(ctx context.Context, id int64) (*models.Donation, error)
	ListActive(ctx context.Context, now time.Time) ([]models.Donation, error)
	ListContributions(ctx context.Context, donationID int64) ([]models.DonationContribution, error)
	AddContribution(ctx context.Context, c *models.DonationContribution, now time.Time) error
	CreatePendingContribution(ctx context.Context, c *models.DonationContribution, now time.Time) error
	SettleContribution(ctx context.Context, orderID, gatewayTxID string) (*models.DonationContribution, bool, error)
}

// DonationConfig holds commission rates and startup fees per organization type.
type DonationConfig struct {
	CorporateCommission  decimal.Decimal
	IndividualCommission decimal.Decimal
	CorporateStartupFee  decimal.Decimal
	IndividualStartupFee decimal.Decimal
	// IDRRate converts a USDT amount into the rupiah amount charged by card.
	IDRRate  decimal.Decimal
	CacheTTL time.Duration
}

type DonationService struct {
	donations DonationRepo
	used      UsedChecker
	verifier  chain.PaymentVerifier
	gateway   payment.Gateway
	hub       Broadcaster
	cache     cache.Cache
	audit     audit.Sink
	cfg       DonationConfig
	log       *zap.Logger
	now       func() time.Time
}

// NewDonationService builds the donation service. gateway may be nil when card
// payments are not configured.
func NewDonationService(
	donations DonationRepo,
	used UsedChecker,
	verifier chain.PaymentVerifier,
	gateway payment.Gateway,
	hub Broadcaster,
	c cache.Cache,
	sink audit.Sink,
	cfg DonationConfig,
	log *zap.Logger,
) *DonationService {
	return &DonationService{
		donations: donations,
		used:      used,
		verifier:  verifier,
		gateway:   gateway,
		hub:       hub,
		cache:     c,
		audit:     sink,
		cfg:       cfg,
		log:       log.Named("donations"),
		now:       time.Now,
	}
}

// Terms returns the commission rate and startup fee for an organization type.
func (s *DonationService) Terms(orgType string) (rate, fee decimal.Decimal, err error) {
	switch orgType {
	case models.OrganizationCorporate:
		return s.cfg.CorporateCommission, s.cfg.CorporateStartupFee, nil
	case models.OrganizationIndividual:
		return s.cfg.IndividualCommission, s.cfg.IndividualStartupFee, nil
	}
	return decimal.Zero, decimal.Zero, models.Invalid("organizationType", "must be corporate or individual")
}

type CreateDonationInput struct {
	Title            string
	Description      string
	GoalAmount       decimal.Decimal
	OrganizationType string
	EndDate          *time.Time
	TransactionHash  string
}

func (in *CreateDonationInput) validate(now time.Time) error {
	in.Title = strings.TrimSpace(in.Title)
	in.OrganizationType = strings.ToLower(strings.TrimSpace(in.OrganizationType))
	switch {
	case in.Title == "":
		return models.Invalid("title", "is required")
	case len(in.Title) > 200:
		return models.Invalid("title", "must be at most 200 characters")
	case !in.GoalAmount.IsPositive():
		return models.Invalid("goalAmount", "must be greater than zero")
	case in.EndDate != nil && !in.EndDate.After(now):
		return models.Invalid("endDate", "must be in the future")
	}
	return nil
}

// Create opens a donation campaign. A non-zero startup fee must be paid on chain first.
func (s *DonationService) Create(ctx context.Context, creator *models.User, in CreateDonationInput) (*models.Donation, error) {
	if err := in.validate(s.now()); err != nil {
		return nil, err
	}
	rate, fee, err := s.Terms(in.OrganizationType)
	if err != nil {
		return nil, err
	}

	d := &models.Donation{
		CreatorID:        creator.ID,
		Title:            in.Title,
		Description:      in.Description,
		GoalAmount:       in.GoalAmount,
		OrganizationType: in.OrganizationType,
		CommissionRate:   rate,
		StartupFee:       fee,
		EndDate:          in.EndDate,
	}

	if fee.IsPositive() {
		hash, err := normalizeHash("transactionHash", in.TransactionHash)
		if err != nil {
			return nil, err
		}
		err = verifyPayment(ctx, s.used, s.verifier, chain.Payment{
			TxHash: hash,
			From:   creator.WalletAddress,
			Amount: fee,
		})
		if err != nil {
			uid := creator.ID
			s.audit.Record(ctx, audit.NewEvent(audit.ActionPaymentRejected, audit.EntityDonation, 0, &uid, map[string]interface{}{
				"tx_hash": hash,
				"reason":  err.Error(),
			}))
			return nil, err
		}
		d.TransactionHash = &hash
	}

	if err := s.donations.Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info("donation created",
		zap.Int64("donation_id", d.ID),
		zap.Int64("creator_id", d.CreatorID),
		zap.String("organization_type", d.OrganizationType),
	)
	invalidate(ctx, s.cache, s.log, cache.KeyActiveDonations)
	s.hub.Broadcast(ws.EventDonationCreated, d)
	uid := creator.ID
	s.audit.Record(ctx, audit.NewEvent(audit.ActionDonationCreated, audit.EntityDonation, d.ID, &uid, map[string]interface{}{
		"title":             d.Title,
		"goal_amount":       d.GoalAmount.String(),
		"organization_type": d.OrganizationType,
		"startup_fee":       fee.String(),
	}))
	return d, nil
}

// List returns open campaigns.
func (s *DonationService) List(ctx context.Context) ([]models.Donation, error) {
	list, err := cachedList(ctx, s.cache, s.log, cache.KeyActiveDonations, s.cfg.CacheTTL, func() ([]models.Donation, error) {
		return s.donations.ListActive(ctx, s.now())
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := make([]models.Donation, 0, len(list))
	for _, d := range list {
		if d.EndDate == nil || d.EndDate.After(now) {
			active = append(active, d)
		}
	}
	return active, nil
}

func (s *DonationService) Get(ctx context.Context, id int64) (*models.Donation, error) {
	return s.donations.GetByID(ctx, id)
}

// Contributions lists the settled contributions of a campaign, newest first.
func (s *DonationService) Contributions(ctx context.Context, id int64) ([]models.DonationContribution, error) {
	if _, err := s.donations.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.donations.ListContributions(ctx, id)
}

// split returns the platform commission and the creator's share of amount.
func split(amount, rate decimal.Decimal) (commission, net decimal.Decimal) {
	commission = amount.Mul(rate).Round(6)
	return commission, amount.Sub(commission)
}

func acceptsContributions(d *models.Donation, now time.Time) error {
	if !d.IsActive || (d.EndDate != nil && !now.Before(*d.EndDate)) {
		return models.ErrDonationInactive
	}
	return nil
}

type ContributeInput struct {
	Amount          decimal.Decimal
	TransactionHash string
}

// Contribute records a verified on-chain contribution.
func (s *DonationService) Contribute(ctx context.Context, donor *models.User, donationID int64, in ContributeInput) (*models.DonationContribution, error) {
	if !in.Amount.IsPositive() {
		return nil, models.Invalid("amount", "must be greater than zero")
	}
	hash, err := normalizeHash("transactionHash", in.TransactionHash)
	if err != nil {
		return nil, err
	}

	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if err := acceptsContributions(d, s.now()); err != nil {
		return nil, err
	}

	err = verifyPayment(ctx, s.used, s.verifier, chain.Payment{
		TxHash: hash,
		From:   donor.WalletAddress,
		Amount: in.Amount,
	})
	if err != nil {
		uid := donor.ID
		s.audit.Record(ctx, audit.NewEvent(audit.ActionPaymentRejected, audit.EntityDonation, d.ID, &uid, map[string]interface{}{
			"tx_hash": hash,
			"reason":  err.Error(),
		}))
		return nil, err
	}

	commission, net := split(in.Amount, d.CommissionRate)
	c := &models.DonationContribution{
		DonationID:       d.ID,
		UserID:           donor.ID,
		Amount:           in.Amount,
		CommissionAmount: commission,
		NetAmount:        net,
		PaymentMethod:    models.PaymentMethodChain,
		TransactionHash:  &hash,
	}
	if err := s.donations.AddContribution(ctx, c, s.now()); err != nil {
		return nil, err
	}

	s.contributed(ctx, c)
	return c, nil
}

// CardCheckout is a pending card contribution with its payment page.
type CardCheckout struct {
	Contribution *models.DonationContribution `json:"contribution"`
	*payment.Checkout
}

// ContributeCard stores a pending card contribution and opens a gateway
// transaction for it. The contribution counts only once the gateway confirms it.
func (s *DonationService) ContributeCard(ctx context.Context, donor *models.User, donationID int64, amount decimal.Decimal) (*CardCheckout, error) {
	if s.gateway == nil {
		return nil, models.ErrCardPaymentsDisabled
	}
	if !amount.IsPositive() {
		return nil, models.Invalid("amount", "must be greater than zero")
	}

	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if err := acceptsContributions(d, s.now()); err != nil {
		return nil, err
	}

	orderID := fmt.Sprintf("DONATION-%d-D%d-U%d-%s", s.now().Unix(), d.ID, donor.ID, uuid.NewString()[:8])
	commission, net := split(amount, d.CommissionRate)
	c := &models.DonationContribution{
		DonationID:       d.ID,
		UserID:           donor.ID,
		Amount:           amount,
		CommissionAmount: commission,
		NetAmount:        net,
		PaymentMethod:    models.PaymentMethodCard,
		OrderID:          &orderID,
	}
	if err := s.donations.CreatePendingContribution(ctx, c, s.now()); err != nil {
		return nil, err
	}

	name := donor.WalletAddress
	if donor.Username != nil {
		name = *donor.Username
	}
	checkout, err := s.gateway.CreateCharge(ctx, payment.Charge{
		OrderID:      orderID,
		GrossAmount:  amount.Mul(s.cfg.IDRRate).Ceil().IntPart(),
		CustomerName: name,
	})
	if err != nil {
		s.log.Error("failed to create card charge",
			zap.String("order_id", orderID),
			zap.Int64("donation_id", d.ID),
			zap.Error(err),
		)
		return nil, err
	}

	s.log.Info("card contribution pending", zap.String("order_id", orderID), zap.Int64("donation_id", d.ID))
	return &CardCheckout{Contribution: c, Checkout: checkout}, nil
}

// HandleNotification settles the contribution behind orderID once the gateway
// reports it paid. Repeated notifications for a settled order are no-ops.
// It reports whether this call settled the contribution.
func (s *DonationService) HandleNotification(ctx context.Context, orderID string) (bool, error) {
	if s.gateway == nil {
		return false, models.ErrCardPaymentsDisabled
	}
	if strings.TrimSpace(orderID) == "" {
		return false, models.Invalid("order_id", "is required")
	}

	status, err := s.gateway.CheckStatus(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !status.Settled() {
		s.log.Info("card payment not settled",
			zap.String("order_id", orderID),
			zap.String("status", status.TransactionStatus),
		)
		return false, nil
	}

	c, settled, err := s.donations.SettleContribution(ctx, status.OrderID, status.TransactionID)
	if err != nil {
		return false, err
	}
	if !settled {
		s.log.Info("duplicate payment notification", zap.String("order_id", orderID))
		return false, nil
	}

	s.contributed(ctx, c)
	return true, nil
}

// ContributionEvent is broadcast when a contribution settles.
type ContributionEvent struct {
	DonationID   int64                        `json:"donationId"`
	Contribution *models.DonationContribution `json:"contribution"`
}

func (s *DonationService) contributed(ctx context.Context, c *models.DonationContribution) {
	s.log.Info("contribution settled",
		zap.Int64("donation_id", c.DonationID),
		zap.Int64("user_id", c.UserID),
		zap.String("amount", c.Amount.String()),
		zap.String("method", c.PaymentMethod),
	)
	invalidate(ctx, s.cache, s.log, cache.KeyActiveDonations)
	s.hub.Broadcast(ws.EventDonationContributed, ContributionEvent{DonationID: c.DonationID, Contribution: c})
	uid := c.UserID
	s.audit.Record(ctx, audit.NewEvent(audit.ActionContributionPaid, audit.EntityDonation, c.DonationID, &uid, map[string]interface{}{
		"contribution_id":   c.ID,
		"amount":            c.Amount.String(),
		"commission_amount": c.CommissionAmount.String(),
		"net_amount":        c.NetAmount.String(),
		"payment_method":    c.PaymentMethod,
	}))
}
