package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"duxxan-platform/internal/models"
	"duxxan-platform/internal/payment"
	"duxxan-platform/internal/service"
)

var (
	testWallet = "0x" + strings.Repeat("ab", 20)
	testHash   = "0x" + strings.Repeat("cd", 32)
	testEnd    = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
)

type fakeUsers struct {
	updated string
	err     error
}

func (f *fakeUsers) Resolve(_ context.Context, wallet string) (*models.User, error) {
	switch {
	case wallet == "":
		return nil, models.ErrMissingWallet
	case !service.WalletPattern.MatchString(wallet):
		return nil, models.ErrInvalidWallet
	}
	return &models.User{ID: 7, WalletAddress: strings.ToLower(wallet)}, nil
}

func (f *fakeUsers) UpdateUsername(_ context.Context, user *models.User, username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updated = username
	u := *user
	u.Username = &username
	return &u, nil
}

type fakeRaffles struct {
	created      *service.CreateRaffleInput
	adminCreated *service.CreateRaffleInput
	adminCreator *models.User
	approvedBy   int64
	err          error
	raffles      map[int64]*models.Raffle
}

func newFakeRaffles() *fakeRaffles {
	return &fakeRaffles{raffles: map[int64]*models.Raffle{
		1: {ID: 1, CreatorID: 7, Title: "Watch", MaxTickets: 10, TicketsSold: 3, EndDate: testEnd},
	}}
}

func (f *fakeRaffles) Create(_ context.Context, creator *models.User, in service.CreateRaffleInput) (*models.Raffle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &in
	return &models.Raffle{ID: 2, CreatorID: creator.ID, Title: in.Title, MaxTickets: in.MaxTickets}, nil
}

func (f *fakeRaffles) CreateAsAdmin(_ context.Context, _ int64, creator *models.User, in service.CreateRaffleInput) (*models.Raffle, error) {
	f.adminCreated = &in
	f.adminCreator = creator
	return &models.Raffle{ID: 3, CreatorID: creator.ID, Title: in.Title}, nil
}

func (f *fakeRaffles) ListActive(context.Context) ([]models.Raffle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []models.Raffle{*f.raffles[1]}, nil
}

func (f *fakeRaffles) ListByCreator(_ context.Context, creatorID int64) ([]models.Raffle, error) {
	out := []models.Raffle{}
	for _, r := range f.raffles {
		if r.CreatorID == creatorID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRaffles) Get(_ context.Context, id int64) (*service.RaffleView, error) {
	r, ok := f.raffles[id]
	if !ok {
		return nil, models.ErrRaffleNotFound
	}
	return &service.RaffleView{Raffle: r, TicketsLeft: r.MaxTickets - r.TicketsSold}, nil
}

func (f *fakeRaffles) Tickets(_ context.Context, id int64) ([]models.Ticket, error) {
	if _, ok := f.raffles[id]; !ok {
		return nil, models.ErrRaffleNotFound
	}
	return []models.Ticket{{ID: 1, RaffleID: id, UserID: 7, Quantity: 3}}, nil
}

func (f *fakeRaffles) Draw(_ context.Context, id int64) (*service.DrawAudit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.DrawAudit{RaffleID: id, Seed: "seed", DrawValue: 5, DrawTotal: 10, Verified: true}, nil
}

func (f *fakeRaffles) Approve(_ context.Context, id int64, user *models.User) (*service.RaffleView, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.approvedBy = user.ID
	return &service.RaffleView{Raffle: f.raffles[id]}, nil
}

type fakeTickets struct {
	input *service.PurchaseInput
	err   error
}

func (f *fakeTickets) Purchase(_ context.Context, buyer *models.User, in service.PurchaseInput) (*models.Ticket, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = &in
	return &models.Ticket{ID: 9, RaffleID: in.RaffleID, UserID: buyer.ID, Quantity: in.Quantity}, nil
}

func (f *fakeTickets) ListByUser(_ context.Context, userID int64) ([]models.Ticket, error) {
	return []models.Ticket{{ID: 9, UserID: userID}}, nil
}

type fakeDonations struct {
	created     *service.CreateDonationInput
	contributed *service.ContributeInput
	cardAmount  decimal.Decimal
	notified    string
	settled     bool
	err         error
}

func (f *fakeDonations) Create(_ context.Context, creator *models.User, in service.CreateDonationInput) (*models.Donation, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = &in
	return &models.Donation{ID: 4, CreatorID: creator.ID, Title: in.Title}, nil
}

func (f *fakeDonations) List(context.Context) ([]models.Donation, error) {
	return []models.Donation{{ID: 4}}, nil
}

func (f *fakeDonations) Get(_ context.Context, id int64) (*models.Donation, error) {
	if id != 4 {
		return nil, models.ErrDonationNotFound
	}
	return &models.Donation{ID: 4}, nil
}

func (f *fakeDonations) Contributions(_ context.Context, id int64) ([]models.DonationContribution, error) {
	return []models.DonationContribution{{ID: 1, DonationID: id}}, nil
}

func (f *fakeDonations) Contribute(_ context.Context, donor *models.User, id int64, in service.ContributeInput) (*models.DonationContribution, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.contributed = &in
	return &models.DonationContribution{ID: 2, DonationID: id, UserID: donor.ID, Amount: in.Amount}, nil
}

func (f *fakeDonations) ContributeCard(_ context.Context, donor *models.User, id int64, amount decimal.Decimal) (*service.CardCheckout, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.cardAmount = amount
	return &service.CardCheckout{
		Contribution: &models.DonationContribution{ID: 3, DonationID: id, UserID: donor.ID, Amount: amount},
		Checkout:     &payment.Checkout{OrderID: "DONATION-1", Token: "tok", RedirectURL: "https://pay.example/tok"},
	}, nil
}

func (f *fakeDonations) HandleNotification(_ context.Context, orderID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.notified = orderID
	return f.settled, nil
}

type fakeChannels struct {
	subscribed   int64
	unsubscribed int64
}

func (f *fakeChannels) Create(_ context.Context, creator *models.User, in service.CreateChannelInput) (*models.Channel, error) {
	return &models.Channel{ID: 5, CreatorID: creator.ID, Name: in.Name}, nil
}

func (f *fakeChannels) List(context.Context) ([]models.Channel, error) {
	return []models.Channel{{ID: 5}}, nil
}

func (f *fakeChannels) Get(_ context.Context, id int64) (*models.Channel, error) {
	if id != 5 {
		return nil, models.ErrChannelNotFound
	}
	return &models.Channel{ID: 5}, nil
}

func (f *fakeChannels) Subscribe(_ context.Context, id int64, _ *models.User) (*models.Channel, error) {
	f.subscribed = id
	return &models.Channel{ID: id, SubscriberCount: 1}, nil
}

func (f *fakeChannels) Unsubscribe(_ context.Context, id int64, _ *models.User) (*models.Channel, error) {
	f.unsubscribed = id
	return &models.Channel{ID: id}, nil
}

type fakeMail struct {
	sent   *service.SendMailInput
	readID int64
}

func (f *fakeMail) Inbox(_ context.Context, user *models.User) ([]models.MailMessage, error) {
	return []models.MailMessage{{ID: 1, ToUserID: user.ID}}, nil
}

func (f *fakeMail) Sent(context.Context, *models.User) ([]models.MailMessage, error) {
	return []models.MailMessage{}, nil
}

func (f *fakeMail) UnreadCount(context.Context, *models.User) (int64, error) {
	return 3, nil
}

func (f *fakeMail) Send(_ context.Context, from *models.User, in service.SendMailInput) (*models.MailMessage, error) {
	f.sent = &in
	return &models.MailMessage{ID: 2, FromUserID: &from.ID, Subject: in.Subject}, nil
}

func (f *fakeMail) MarkRead(_ context.Context, id int64, _ *models.User) error {
	if id != 1 {
		return models.ErrMailNotFound
	}
	f.readID = id
	return nil
}

type fakeAdmin struct {
	settled  int64
	jobLimit int
	err      error
}

func (f *fakeAdmin) Login(_ context.Context, username, password string) (string, error) {
	if username != "admin" || password != "secret" {
		return "", models.ErrInvalidCredentials
	}
	return "good", nil
}

func (f *fakeAdmin) ParseToken(token string) (int64, error) {
	if token != "good" {
		return 0, models.ErrInvalidToken
	}
	return 1, nil
}

func (f *fakeAdmin) Stats(context.Context) (*models.PlatformStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.PlatformStats{Users: 2, Raffles: 1}, nil
}

func (f *fakeAdmin) Jobs(_ context.Context, limit int) (*service.JobsSummary, error) {
	f.jobLimit = limit
	return &service.JobsSummary{Pending: 4}, nil
}

func (f *fakeAdmin) Settle(_ context.Context, _ int64, raffleID int64) (*models.Raffle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.settled = raffleID
	return &models.Raffle{ID: raffleID, SettlementStatus: models.SettlementPending}, nil
}
