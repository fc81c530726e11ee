package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/psp"
	"github.com/AmazingeventParis/Kooki/internal/repository"
)

func TestMain(m *testing.M) {
	logger.Init("error")
	os.Exit(m.Run())
}

// In-memory fakes that honor the same guarded-transition contracts as the
// SQL repositories, so idempotency and concurrency behavior can be exercised
// without a database.

type fakeFundraiserRepo struct {
	mu          sync.Mutex
	fundraisers map[uuid.UUID]*models.Fundraiser
}

func newFakeFundraiserRepo() *fakeFundraiserRepo {
	return &fakeFundraiserRepo{fundraisers: make(map[uuid.UUID]*models.Fundraiser)}
}

func (f *fakeFundraiserRepo) add(fr *models.Fundraiser) *models.Fundraiser {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fr.ID == uuid.Nil {
		fr.ID = uuid.New()
	}
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = time.Now()
	}
	f.fundraisers[fr.ID] = fr
	return fr
}

func (f *fakeFundraiserRepo) Create(ctx context.Context, fr *models.Fundraiser) error {
	f.add(fr)
	return nil
}

func (f *fakeFundraiserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Fundraiser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.fundraisers[id]
	if !ok {
		return nil, repository.ErrFundraiserNotFound
	}
	cp := *fr
	return &cp, nil
}

func (f *fakeFundraiserRepo) GetBySlug(ctx context.Context, slug string) (*models.Fundraiser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fr := range f.fundraisers {
		if fr.Slug == slug {
			cp := *fr
			return &cp, nil
		}
	}
	return nil, repository.ErrFundraiserNotFound
}

func (f *fakeFundraiserRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Fundraiser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Fundraiser
	for _, fr := range f.fundraisers {
		if fr.OwnerUserID == ownerID {
			out = append(out, *fr)
		}
	}
	return out, nil
}

func (f *fakeFundraiserRepo) IncrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.fundraisers[id]
	if !ok {
		return 0, repository.ErrFundraiserNotFound
	}
	fr.CurrentAmount += amount
	return fr.CurrentAmount, nil
}

func (f *fakeFundraiserRepo) DecrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	return f.IncrementAmount(ctx, id, -amount)
}

func (f *fakeFundraiserRepo) CompleteIfCeilingReached(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.fundraisers[id]
	if !ok {
		return false, repository.ErrFundraiserNotFound
	}
	if fr.Status == models.FundraiserStatusActive && fr.MaxAmount != nil && fr.CurrentAmount >= *fr.MaxAmount {
		fr.Status = models.FundraiserStatusCompleted
		return true, nil
	}
	return false, nil
}

func (f *fakeFundraiserRepo) MarkOpeningFeePaid(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.fundraisers[id]
	if !ok {
		return false, repository.ErrFundraiserNotFound
	}
	if fr.Status != models.FundraiserStatusDraft || fr.OpeningFeePaid {
		return false, nil
	}
	fr.Status = models.FundraiserStatusActive
	fr.OpeningFeePaid = true
	return true, nil
}

func (f *fakeFundraiserRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fr, ok := f.fundraisers[id]
	if !ok {
		return false, repository.ErrFundraiserNotFound
	}
	if fr.Status != from {
		return false, nil
	}
	fr.Status = to
	return true, nil
}

type fakeDonationRepo struct {
	mu        sync.Mutex
	donations map[uuid.UUID]*models.Donation
}

func newFakeDonationRepo() *fakeDonationRepo {
	return &fakeDonationRepo{donations: make(map[uuid.UUID]*models.Donation)}
}

func (f *fakeDonationRepo) add(d *models.Donation) *models.Donation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	f.donations[d.ID] = d
	return d
}

func (f *fakeDonationRepo) Create(ctx context.Context, d *models.Donation) error {
	f.add(d)
	return nil
}

func (f *fakeDonationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[id]
	if !ok {
		return nil, repository.ErrDonationNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDonationRepo) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.donations {
		if d.StripePaymentIntentID != nil && *d.StripePaymentIntentID == paymentIntentID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrDonationNotFound
}

func (f *fakeDonationRepo) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[id]
	if !ok {
		return repository.ErrDonationNotFound
	}
	d.StripeSessionID = &sessionID
	return nil
}

func (f *fakeDonationRepo) MarkCompleted(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID *string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[id]
	if !ok {
		return false, repository.ErrDonationNotFound
	}
	if d.Status != models.DonationStatusPending {
		return false, nil
	}
	d.Status = models.DonationStatusCompleted
	now := time.Now()
	d.CompletedAt = &now
	if sessionID != nil {
		d.StripeSessionID = sessionID
	}
	if paymentIntentID != nil {
		d.StripePaymentIntentID = paymentIntentID
	}
	return true, nil
}

func (f *fakeDonationRepo) transition(id uuid.UUID, from, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.donations[id]
	if !ok {
		return false, repository.ErrDonationNotFound
	}
	if d.Status != from {
		return false, nil
	}
	d.Status = to
	return true, nil
}

func (f *fakeDonationRepo) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, models.DonationStatusPending, models.DonationStatusFailed)
}

func (f *fakeDonationRepo) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, models.DonationStatusCompleted, models.DonationStatusRefunded)
}

func (f *fakeDonationRepo) MarkDisputed(ctx context.Context, id uuid.UUID) (bool, error) {
	return f.transition(id, models.DonationStatusCompleted, models.DonationStatusDisputed)
}

func (f *fakeDonationRepo) completed(fundraiserID uuid.UUID) []models.Donation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Donation
	for _, d := range f.donations {
		if d.FundraiserID == fundraiserID && d.Status == models.DonationStatusCompleted {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return donationAnchor(out[i]).Before(donationAnchor(out[j]))
	})
	return out
}

func donationAnchor(d models.Donation) time.Time {
	if d.CompletedAt != nil {
		return *d.CompletedAt
	}
	return d.CreatedAt
}

func (f *fakeDonationRepo) ListCompleted(ctx context.Context, fundraiserID uuid.UUID, limit, offset int) ([]models.Donation, error) {
	out := f.completed(fundraiserID)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDonationRepo) CountCompleted(ctx context.Context, fundraiserID uuid.UUID) (int, error) {
	return len(f.completed(fundraiserID)), nil
}

func (f *fakeDonationRepo) OldestCompleted(ctx context.Context, fundraiserID uuid.UUID) (*models.Donation, error) {
	out := f.completed(fundraiserID)
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}

func (f *fakeDonationRepo) ListPendingWithSession(ctx context.Context) ([]models.Donation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Donation
	for _, d := range f.donations {
		if d.Status == models.DonationStatusPending && d.StripeSessionID != nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

type fakeOrganizationRepo struct {
	mu   sync.Mutex
	orgs map[uuid.UUID]*models.Organization
}

func newFakeOrganizationRepo() *fakeOrganizationRepo {
	return &fakeOrganizationRepo{orgs: make(map[uuid.UUID]*models.Organization)}
}

func (f *fakeOrganizationRepo) add(o *models.Organization) *models.Organization {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	f.orgs[o.ID] = o
	return o
}

func (f *fakeOrganizationRepo) Create(ctx context.Context, o *models.Organization) error {
	f.mu.Lock()
	for _, existing := range f.orgs {
		if existing.OwnerUserID == o.OwnerUserID {
			f.mu.Unlock()
			return repository.ErrOrganizationExists
		}
	}
	f.mu.Unlock()
	f.add(o)
	return nil
}

func (f *fakeOrganizationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return nil, repository.ErrOrganizationNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrganizationRepo) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.OwnerUserID == ownerID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrganizationNotFound
}

func (f *fakeOrganizationRepo) GetByStripeAccount(ctx context.Context, stripeAccountID string) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orgs {
		if o.StripeAccountID != nil && *o.StripeAccountID == stripeAccountID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrganizationNotFound
}

func (f *fakeOrganizationRepo) SetStripeAccount(ctx context.Context, id uuid.UUID, stripeAccountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return repository.ErrOrganizationNotFound
	}
	o.StripeAccountID = &stripeAccountID
	return nil
}

func (f *fakeOrganizationRepo) SetPayoutReady(ctx context.Context, id uuid.UUID, ready bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orgs[id]
	if !ok {
		return false, repository.ErrOrganizationNotFound
	}
	if o.IsPayoutReady == ready {
		return false, nil
	}
	o.IsPayoutReady = ready
	return true, nil
}

// fakeWithdrawalRepo recomputes the available balance from the donation fake
// under its own lock, mirroring the row-locked SQL transaction.
type fakeWithdrawalRepo struct {
	mu          sync.Mutex
	withdrawals map[uuid.UUID]*models.Withdrawal
	donations   *fakeDonationRepo
}

func newFakeWithdrawalRepo(donations *fakeDonationRepo) *fakeWithdrawalRepo {
	return &fakeWithdrawalRepo{
		withdrawals: make(map[uuid.UUID]*models.Withdrawal),
		donations:   donations,
	}
}

func (f *fakeWithdrawalRepo) availableLocked(fundraiserID uuid.UUID) int64 {
	var available int64
	for _, d := range f.donations.completed(fundraiserID) {
		available += d.Amount
	}
	for _, w := range f.withdrawals {
		if w.FundraiserID == fundraiserID && w.Status != models.WithdrawalStatusFailed {
			available -= w.Amount
		}
	}
	return available
}

func (f *fakeWithdrawalRepo) CreateWithBalanceGuard(ctx context.Context, fundraiserID uuid.UUID, amount int64) (*models.Withdrawal, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	available := f.availableLocked(fundraiserID)
	if amount > available {
		return nil, available, repository.ErrInsufficientBalance
	}

	w := &models.Withdrawal{
		ID:           uuid.New(),
		FundraiserID: fundraiserID,
		Amount:       amount,
		Status:       models.WithdrawalStatusPending,
		CreatedAt:    time.Now(),
	}
	f.withdrawals[w.ID] = w
	cp := *w
	return &cp, available, nil
}

func (f *fakeWithdrawalRepo) AvailableBalance(ctx context.Context, fundraiserID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availableLocked(fundraiserID), nil
}

func (f *fakeWithdrawalRepo) MarkProcessing(ctx context.Context, id uuid.UUID, transferID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.withdrawals[id]
	if !ok || w.Status != models.WithdrawalStatusPending {
		return repository.ErrWithdrawalNotFound
	}
	w.Status = models.WithdrawalStatusProcessing
	w.StripeTransferID = &transferID
	now := time.Now()
	w.ProcessedAt = &now
	return nil
}

func (f *fakeWithdrawalRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.withdrawals[id]
	if !ok || w.Status != models.WithdrawalStatusPending {
		return repository.ErrWithdrawalNotFound
	}
	w.Status = models.WithdrawalStatusFailed
	w.FailureReason = &reason
	return nil
}

func (f *fakeWithdrawalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.withdrawals[id]
	if !ok {
		return nil, repository.ErrWithdrawalNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeWithdrawalRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Withdrawal
	for _, w := range f.withdrawals {
		out = append(out, *w)
	}
	return out, nil
}

// fakeReceiptRepo reproduces the per-organization, per-year atomic counter.
type fakeReceiptRepo struct {
	mu       sync.Mutex
	counters map[string]int64
	receipts map[uuid.UUID]*models.TaxReceipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{
		counters: make(map[string]int64),
		receipts: make(map[uuid.UUID]*models.TaxReceipt),
	}
}

func (f *fakeReceiptRepo) Mint(ctx context.Context, donationID, organizationID uuid.UUID, year int) (*models.TaxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.receipts[donationID]; exists {
		return nil, repository.ErrReceiptExists
	}

	key := fmt.Sprintf("%s-%d", organizationID, year)
	f.counters[key]++

	r := &models.TaxReceipt{
		ID:             uuid.New(),
		DonationID:     donationID,
		OrganizationID: organizationID,
		ReceiptNumber:  fmt.Sprintf("CERFA-%d-%06d", year, f.counters[key]),
		Status:         models.TaxReceiptStatusPending,
		CreatedAt:      time.Now(),
	}
	f.receipts[donationID] = r
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) CancelByDonation(ctx context.Context, donationID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[donationID]
	if !ok || r.Status == models.TaxReceiptStatusCancelled {
		return false, nil
	}
	r.Status = models.TaxReceiptStatusCancelled
	return true, nil
}

func (f *fakeReceiptRepo) GetByDonation(ctx context.Context, donationID uuid.UUID) (*models.TaxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[donationID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]models.TaxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.TaxReceipt
	for _, r := range f.receipts {
		if r.OrganizationID == organizationID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeWebhookEventRepo struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{seen: make(map[string]struct{})}
}

func (f *fakeWebhookEventRepo) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[eventID]; ok {
		return false, nil
	}
	f.seen[eventID] = struct{}{}
	return true, nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditRepo) Insert(ctx context.Context, entry *models.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

type fakeNotificationRepo struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	f.notifications = append(f.notifications, *n)
	return nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.notifications {
		if f.notifications[i].ID == id {
			f.notifications[i].IsRead = true
		}
	}
	return nil
}

func (f *fakeNotificationRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, n := range f.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return repository.ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Role = role
	}
	return nil
}

// mockProcessor is a testify mock over the payment processor surface.
type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateDonationCheckout(ctx context.Context, p psp.DonationCheckoutParams) (*psp.CheckoutSession, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*psp.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) CreatePlanCheckout(ctx context.Context, fundraiserID uuid.UUID, planName string, priceCents int64, userID uuid.UUID) (*psp.CheckoutSession, error) {
	args := m.Called(ctx, fundraiserID, planName, priceCents, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*psp.CheckoutSession), args.Error(1)
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, amount int64, currency, destinationAccountID, transferGroup string, metadata map[string]string) (*psp.Transfer, error) {
	args := m.Called(ctx, amount, currency, destinationAccountID, transferGroup, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*psp.Transfer), args.Error(1)
}

func (m *mockProcessor) CreateConnectAccount(ctx context.Context, email, businessName, country string) (string, error) {
	args := m.Called(ctx, email, businessName, country)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateAccountLink(ctx context.Context, accountID string) (string, error) {
	args := m.Called(ctx, accountID)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) GetAccountStatus(ctx context.Context, accountID string) (*psp.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*psp.AccountStatus), args.Error(1)
}

func (m *mockProcessor) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*psp.SessionStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*psp.SessionStatus), args.Error(1)
}
