package service

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/models"
	"duxxan-platform/internal/payment"
	"duxxan-platform/internal/queue"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	testWallet = "0x1111111111111111111111111111111111111111"
	testHash   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func testUser(id int64) *models.User {
	return &models.User{ID: id, WalletAddress: testWallet}
}

type fakeVerifier struct {
	ok       bool
	payments []chain.Payment
}

func (f *fakeVerifier) Verify(_ context.Context, p chain.Payment) bool {
	f.payments = append(f.payments, p)
	return f.ok
}

type fakeUsed map[string]bool

func (f fakeUsed) IsUsed(_ context.Context, hash string) (bool, error) {
	return f[hash], nil
}

type sentEvent struct {
	Type string
	Data interface{}
}

type fakeHub struct {
	events []sentEvent
}

func (f *fakeHub) Broadcast(eventType string, data interface{}) {
	f.events = append(f.events, sentEvent{Type: eventType, Data: data})
}

func (f *fakeHub) types() []string {
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fakeScheduler struct {
	scheduled []int64
	err       error
}

func (f *fakeScheduler) Schedule(_ context.Context, r *models.Raffle) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, r.ID)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (s *recordingSink) Record(_ context.Context, ev models.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Action
	}
	return out
}

// memCache is an in-process cache.Cache that round-trips values through JSON.
type memCache struct {
	items   map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{items: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	raw, ok := c.items[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = raw
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.items, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

type fakeRaffles struct {
	raffles     map[int64]*models.Raffle
	nextID      int64
	listCalls   int
	approvalErr error
}

func newFakeRaffles(rs ...*models.Raffle) *fakeRaffles {
	f := &fakeRaffles{raffles: map[int64]*models.Raffle{}, nextID: 100}
	for _, r := range rs {
		f.raffles[r.ID] = r
	}
	return f
}

func (f *fakeRaffles) Create(_ context.Context, r *models.Raffle) error {
	f.nextID++
	r.ID = f.nextID
	r.IsActive = true
	r.SettlementStatus = models.SettlementPending
	f.raffles[r.ID] = r
	return nil
}

func (f *fakeRaffles) GetByID(_ context.Context, id int64) (*models.Raffle, error) {
	r, ok := f.raffles[id]
	if !ok {
		return nil, models.ErrRaffleNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRaffles) ListActive(_ context.Context, now time.Time) ([]models.Raffle, error) {
	f.listCalls++
	out := []models.Raffle{}
	for _, r := range f.raffles {
		if r.IsActive && r.EndDate.After(now) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
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

func (f *fakeRaffles) SetApproval(_ context.Context, id int64, creator, winner bool) (*models.Raffle, error) {
	if f.approvalErr != nil {
		return nil, f.approvalErr
	}
	r, ok := f.raffles[id]
	if !ok {
		return nil, models.ErrRaffleNotFound
	}
	r.IsApprovedByCreator = r.IsApprovedByCreator || creator
	r.IsApprovedByWinner = r.IsApprovedByWinner || winner
	cp := *r
	return &cp, nil
}

type fakeLedger struct {
	raffles *fakeRaffles
	tickets []models.Ticket
	err     error
}

func (f *fakeLedger) Purchase(_ context.Context, t *models.Ticket, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	t.ID = int64(len(f.tickets) + 1)
	f.tickets = append(f.tickets, *t)
	if f.raffles != nil {
		if r, ok := f.raffles.raffles[t.RaffleID]; ok {
			r.TicketsSold += t.Quantity
		}
	}
	return nil
}

func (f *fakeLedger) ListByUser(_ context.Context, userID int64) ([]models.Ticket, error) {
	out := []models.Ticket{}
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListByRaffle(_ context.Context, raffleID int64) ([]models.Ticket, error) {
	out := []models.Ticket{}
	for _, t := range f.tickets {
		if t.RaffleID == raffleID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeDonations struct {
	donations     map[int64]*models.Donation
	contributions []*models.DonationContribution
	nextID        int64
}

func newFakeDonations(ds ...*models.Donation) *fakeDonations {
	f := &fakeDonations{donations: map[int64]*models.Donation{}, nextID: 10}
	for _, d := range ds {
		f.donations[d.ID] = d
	}
	return f
}

func (f *fakeDonations) Create(_ context.Context, d *models.Donation) error {
	f.nextID++
	d.ID = f.nextID
	d.IsActive = true
	f.donations[d.ID] = d
	return nil
}

func (f *fakeDonations) GetByID(_ context.Context, id int64) (*models.Donation, error) {
	d, ok := f.donations[id]
	if !ok {
		return nil, models.ErrDonationNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDonations) ListActive(_ context.Context, _ time.Time) ([]models.Donation, error) {
	out := []models.Donation{}
	for _, d := range f.donations {
		if d.IsActive {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDonations) ListContributions(_ context.Context, donationID int64) ([]models.DonationContribution, error) {
	out := []models.DonationContribution{}
	for _, c := range f.contributions {
		if c.DonationID == donationID && c.Status == models.ContributionSettled {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeDonations) apply(c *models.DonationContribution) {
	d := f.donations[c.DonationID]
	d.CurrentAmount = d.CurrentAmount.Add(c.Amount)
	d.DonorCount++
}

func (f *fakeDonations) AddContribution(_ context.Context, c *models.DonationContribution, _ time.Time) error {
	c.ID = int64(len(f.contributions) + 1)
	c.Status = models.ContributionSettled
	f.contributions = append(f.contributions, c)
	f.apply(c)
	return nil
}

func (f *fakeDonations) CreatePendingContribution(_ context.Context, c *models.DonationContribution, _ time.Time) error {
	c.ID = int64(len(f.contributions) + 1)
	c.Status = models.ContributionPending
	f.contributions = append(f.contributions, c)
	return nil
}

func (f *fakeDonations) SettleContribution(_ context.Context, orderID, gatewayTxID string) (*models.DonationContribution, bool, error) {
	for _, c := range f.contributions {
		if c.OrderID == nil || *c.OrderID != orderID {
			continue
		}
		if c.Status == models.ContributionSettled {
			return c, false, nil
		}
		c.Status = models.ContributionSettled
		c.PaymentGatewayTxID = &gatewayTxID
		f.apply(c)
		return c, true, nil
	}
	return nil, false, models.ErrContributionNotFound
}

type fakeGateway struct {
	charges []payment.Charge
	status  map[string]string
}

func (f *fakeGateway) CreateCharge(_ context.Context, charge payment.Charge) (*payment.Checkout, error) {
	f.charges = append(f.charges, charge)
	return &payment.Checkout{
		OrderID:     charge.OrderID,
		Token:       "snap-token",
		RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-token",
	}, nil
}

func (f *fakeGateway) CheckStatus(_ context.Context, orderID string) (*payment.Status, error) {
	st, ok := f.status[orderID]
	if !ok {
		return nil, models.ErrGateway
	}
	return &payment.Status{OrderID: orderID, TransactionID: "tx-" + orderID, TransactionStatus: st}, nil
}

type fakeChannels struct {
	channels map[int64]*models.Channel
	subs     map[[2]int64]bool
	lists    int
}

func newFakeChannels(chs ...*models.Channel) *fakeChannels {
	f := &fakeChannels{channels: map[int64]*models.Channel{}, subs: map[[2]int64]bool{}}
	for _, ch := range chs {
		f.channels[ch.ID] = ch
	}
	return f
}

func (f *fakeChannels) Create(_ context.Context, ch *models.Channel) error {
	ch.ID = int64(len(f.channels) + 1)
	f.channels[ch.ID] = ch
	return nil
}

func (f *fakeChannels) GetByID(_ context.Context, id int64) (*models.Channel, error) {
	ch, ok := f.channels[id]
	if !ok {
		return nil, models.ErrChannelNotFound
	}
	return ch, nil
}

func (f *fakeChannels) List(_ context.Context) ([]models.Channel, error) {
	f.lists++
	out := []models.Channel{}
	for _, ch := range f.channels {
		out = append(out, *ch)
	}
	return out, nil
}

func (f *fakeChannels) Subscribe(_ context.Context, channelID, userID int64) (*models.Channel, bool, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, false, models.ErrChannelNotFound
	}
	key := [2]int64{channelID, userID}
	if f.subs[key] {
		return ch, false, nil
	}
	f.subs[key] = true
	ch.SubscriberCount++
	return ch, true, nil
}

func (f *fakeChannels) Unsubscribe(_ context.Context, channelID, userID int64) (*models.Channel, bool, error) {
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, false, models.ErrChannelNotFound
	}
	key := [2]int64{channelID, userID}
	if !f.subs[key] {
		return ch, false, nil
	}
	delete(f.subs, key)
	ch.SubscriberCount--
	return ch, true, nil
}

type fakeUsers struct {
	byWallet map[string]*models.User
}

func newFakeUsers(us ...*models.User) *fakeUsers {
	f := &fakeUsers{byWallet: map[string]*models.User{}}
	for _, u := range us {
		f.byWallet[u.WalletAddress] = u
	}
	return f
}

func (f *fakeUsers) GetOrCreateByWallet(_ context.Context, wallet string) (*models.User, error) {
	if u, ok := f.byWallet[wallet]; ok {
		return u, nil
	}
	u := &models.User{ID: int64(len(f.byWallet) + 1), WalletAddress: wallet}
	f.byWallet[wallet] = u
	return u, nil
}

func (f *fakeUsers) GetByWallet(_ context.Context, wallet string) (*models.User, error) {
	if u, ok := f.byWallet[wallet]; ok {
		return u, nil
	}
	return nil, models.ErrUserNotFound
}

func (f *fakeUsers) UpdateUsername(_ context.Context, id int64, username string) (*models.User, error) {
	for _, u := range f.byWallet {
		if u.ID == id {
			u.Username = &username
			return u, nil
		}
	}
	return nil, models.ErrUserNotFound
}

type fakeMail struct {
	messages []*models.MailMessage
}

func (f *fakeMail) Create(_ context.Context, m *models.MailMessage) error {
	m.ID = int64(len(f.messages) + 1)
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeMail) Inbox(_ context.Context, userID int64) ([]models.MailMessage, error) {
	out := []models.MailMessage{}
	for _, m := range f.messages {
		if m.ToUserID == userID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMail) Sent(_ context.Context, userID int64) ([]models.MailMessage, error) {
	out := []models.MailMessage{}
	for _, m := range f.messages {
		if m.FromUserID != nil && *m.FromUserID == userID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMail) MarkRead(_ context.Context, id, userID int64) error {
	for _, m := range f.messages {
		if m.ID == id && m.ToUserID == userID {
			m.IsRead = true
			return nil
		}
	}
	return models.ErrMailNotFound
}

func (f *fakeMail) UnreadCount(_ context.Context, userID int64) (int64, error) {
	var n int64
	for _, m := range f.messages {
		if m.ToUserID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

type fakeAdmins struct {
	admins map[string]*models.AdminUser
}

func (f *fakeAdmins) GetByUsername(_ context.Context, username string) (*models.AdminUser, error) {
	a, ok := f.admins[username]
	if !ok {
		return nil, models.ErrInvalidCredentials
	}
	return a, nil
}

func (f *fakeAdmins) CreateIfAbsent(_ context.Context, username, passwordHash string) (bool, error) {
	if _, ok := f.admins[username]; ok {
		return false, nil
	}
	f.admins[username] = &models.AdminUser{ID: int64(len(f.admins) + 1), Username: username, PasswordHash: passwordHash}
	return true, nil
}

type fakeStats struct{}

func (fakeStats) Stats(_ context.Context) (*models.PlatformStats, error) {
	return &models.PlatformStats{Users: 3, Raffles: 2}, nil
}

type fakeJobs struct {
	pending int64
	failed  []queue.Job
}

func (f *fakeJobs) Pending(_ context.Context) (int64, error) { return f.pending, nil }

func (f *fakeJobs) Failed(_ context.Context, limit int) ([]queue.Job, error) {
	if len(f.failed) > limit {
		return f.failed[:limit], nil
	}
	return f.failed, nil
}

type fakeTrigger struct {
	raffleID, adminID int64
	err               error
}

func (f *fakeTrigger) Retrigger(_ context.Context, raffleID, adminID int64) (*models.Raffle, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.raffleID, f.adminID = raffleID, adminID
	return &models.Raffle{ID: raffleID, SettlementStatus: models.SettlementPending}, nil
}
