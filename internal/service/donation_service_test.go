package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/psp"
)

type testEnv struct {
	fundraisers *fakeFundraiserRepo
	donations   *fakeDonationRepo
	orgs        *fakeOrganizationRepo
	withdrawals *fakeWithdrawalRepo
	receipts    *fakeReceiptRepo
	events      *fakeWebhookEventRepo
	users       *fakeUserRepo
	processor   *mockProcessor

	donationSvc   *DonationService
	fundraiserSvc *FundraiserService
	withdrawalSvc *WithdrawalService
	receiptSvc    *ReceiptService
	orgSvc        *OrganizationService
	webhookSvc    *WebhookService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		fundraisers: newFakeFundraiserRepo(),
		donations:   newFakeDonationRepo(),
		orgs:        newFakeOrganizationRepo(),
		receipts:    newFakeReceiptRepo(),
		events:      newFakeWebhookEventRepo(),
		users:       newFakeUserRepo(),
		processor:   new(mockProcessor),
	}
	env.withdrawals = newFakeWithdrawalRepo(env.donations)

	audit := NewAuditService(&fakeAuditRepo{})
	notifications := NewNotificationService(&fakeNotificationRepo{}, nil)

	env.receiptSvc = NewReceiptService(env.receipts, env.orgs, audit)
	env.orgSvc = NewOrganizationService(env.orgs, env.users, env.processor, audit, notifications)
	env.fundraiserSvc = NewFundraiserService(env.fundraisers, env.orgs, env.processor, audit)
	env.donationSvc = NewDonationService(env.donations, env.fundraisers, env.orgs, env.processor, env.receiptSvc, audit, notifications)
	env.withdrawalSvc = NewWithdrawalService(env.withdrawals, env.fundraisers, env.donations, env.orgs, env.processor, audit, notifications)
	env.webhookSvc = NewWebhookService(env.donationSvc, env.fundraiserSvc, env.orgSvc, env.events)

	return env
}

func (env *testEnv) activeFundraiser(maxAmount *int64) *models.Fundraiser {
	return env.fundraisers.add(&models.Fundraiser{
		OwnerUserID: uuid.New(),
		Kind:        models.FundraiserKindPersonal,
		Title:       "Aide pour Marie",
		Slug:        "aide-pour-marie-abc12345",
		Currency:    "eur",
		PlanCode:    "PERSONAL_FREE",
		MaxAmount:   maxAmount,
		Status:      models.FundraiserStatusActive,
	})
}

func int64ptr(v int64) *int64 { return &v }
func strptr(s string) *string { return &s }

func TestDonationService_CreateCheckout(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(int64ptr(500_00))

	env.processor.On("CreateDonationCheckout", ctx, mock.AnythingOfType("psp.DonationCheckoutParams")).
		Return(&psp.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil)

	result, err := env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: f.ID,
		Amount:       25_00,
		TipAmount:    1_50,
		DonorName:    "Jean Dupont",
		DonorEmail:   "jean@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", result.SessionID)

	d, err := env.donations.GetByID(ctx, result.DonationID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusPending, d.Status)
	assert.Equal(t, int64(25_00), d.Amount)
	assert.Equal(t, int64(1_50), d.TipAmount)
	require.NotNil(t, d.StripeSessionID)
	assert.Equal(t, "cs_test_1", *d.StripeSessionID)
	env.processor.AssertExpectations(t)
}

func TestDonationService_CreateCheckout_Validation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(int64ptr(500_00))

	_, err := env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: f.ID, Amount: 0, DonorEmail: "a@b.fr",
	})
	assert.True(t, apperror.IsValidation(err))

	// Paused fundraisers refuse donations.
	paused := env.fundraisers.add(&models.Fundraiser{
		OwnerUserID: uuid.New(), Kind: models.FundraiserKindPersonal,
		Currency: "eur", PlanCode: "PERSONAL_FREE", Status: models.FundraiserStatusPaused,
	})
	_, err = env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: paused.ID, Amount: 10_00, DonorEmail: "a@b.fr",
	})
	assert.True(t, apperror.IsValidation(err))

	// Advisory ceiling pre-check.
	full := env.activeFundraiser(int64ptr(100_00))
	_, err = env.fundraisers.IncrementAmount(ctx, full.ID, 95_00)
	require.NoError(t, err)
	_, err = env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: full.ID, Amount: 10_00, DonorEmail: "a@b.fr",
	})
	assert.True(t, apperror.IsValidation(err))

	// A receipt needs an address and an association fundraiser.
	_, err = env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: f.ID, Amount: 10_00, DonorEmail: "a@b.fr", WantsReceipt: true,
	})
	assert.True(t, apperror.IsValidation(err))
}

func TestDonationService_CompleteFromProcessor_Idempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(nil)

	d := env.donations.add(&models.Donation{
		FundraiserID: f.ID,
		Amount:       50_00,
		Currency:     "eur",
		Status:       models.DonationStatusPending,
	})

	applied, err := env.donationSvc.CompleteFromProcessor(ctx, d.ID, strptr("cs_1"), strptr("pi_1"))
	require.NoError(t, err)
	assert.True(t, applied)

	// Second delivery is a no-op: the total is incremented exactly once.
	applied, err = env.donationSvc.CompleteFromProcessor(ctx, d.ID, strptr("cs_1"), strptr("pi_1"))
	require.NoError(t, err)
	assert.False(t, applied)

	fr, err := env.fundraisers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_00), fr.CurrentAmount)

	got, err := env.donations.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestDonationService_CompletionReachesCeiling(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(int64ptr(100_00))

	d := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 100_00, Currency: "eur", Status: models.DonationStatusPending,
	})

	applied, err := env.donationSvc.CompleteFromProcessor(ctx, d.ID, strptr("cs_1"), strptr("pi_1"))
	require.NoError(t, err)
	assert.True(t, applied)

	fr, err := env.fundraisers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FundraiserStatusCompleted, fr.Status)
}

func TestDonationService_RefundReversesOriginalAmount(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(nil)

	d := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 80_00, Currency: "eur", Status: models.DonationStatusPending,
	})
	_, err := env.donationSvc.CompleteFromProcessor(ctx, d.ID, strptr("cs_1"), strptr("pi_refund"))
	require.NoError(t, err)

	require.NoError(t, env.donationSvc.RefundByPaymentIntent(ctx, "pi_refund"))

	fr, err := env.fundraisers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fr.CurrentAmount)

	got, err := env.donations.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusRefunded, got.Status)

	// A refund for a donation that is not COMPLETED leaves everything alone.
	require.NoError(t, env.donationSvc.RefundByPaymentIntent(ctx, "pi_refund"))
	fr, err = env.fundraisers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), fr.CurrentAmount)
}

func TestDonationService_ListByFundraiser_MasksAnonymous(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(nil)

	d1 := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 10_00, Currency: "eur",
		DonorName: "Jean", Status: models.DonationStatusPending,
	})
	d2 := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 20_00, Currency: "eur",
		DonorName: "Claire", IsAnonymous: true, Status: models.DonationStatusPending,
	})
	for _, d := range []uuid.UUID{d1.ID, d2.ID} {
		_, err := env.donationSvc.CompleteFromProcessor(ctx, d, nil, nil)
		require.NoError(t, err)
	}
	// Pending donations never show up.
	env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 5_00, Currency: "eur", Status: models.DonationStatusPending,
	})

	list, total, err := env.donationSvc.ListByFundraiser(ctx, f.ID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	names := map[string]bool{}
	for _, p := range list {
		names[p.DonorName] = true
	}
	assert.True(t, names["Jean"])
	assert.True(t, names["Anonyme"])
	assert.False(t, names["Claire"])
}

func TestDonationService_ReconcilePending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.activeFundraiser(nil)

	paid := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 30_00, Currency: "eur",
		Status: models.DonationStatusPending, StripeSessionID: strptr("cs_paid"),
	})
	unpaid := env.donations.add(&models.Donation{
		FundraiserID: f.ID, Amount: 40_00, Currency: "eur",
		Status: models.DonationStatusPending, StripeSessionID: strptr("cs_unpaid"),
	})

	env.processor.On("RetrieveCheckoutSession", mock.Anything, "cs_paid").
		Return(&psp.SessionStatus{Paid: true, PaymentIntentID: "pi_9"}, nil)
	env.processor.On("RetrieveCheckoutSession", mock.Anything, "cs_unpaid").
		Return(&psp.SessionStatus{Paid: false}, nil)

	require.NoError(t, env.donationSvc.ReconcilePending(ctx))

	got, err := env.donations.GetByID(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusCompleted, got.Status)
	require.NotNil(t, got.StripePaymentIntentID)
	assert.Equal(t, "pi_9", *got.StripePaymentIntentID)

	got, err = env.donations.GetByID(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DonationStatusPending, got.Status)

	fr, err := env.fundraisers.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30_00), fr.CurrentAmount)
}

// associationFundraiser builds an ACTIVE association fundraiser backed by a
// tax-eligible organization whose payout readiness the caller controls.
func (env *testEnv) associationFundraiser(payoutReady bool) *models.Fundraiser {
	owner := uuid.New()
	org := env.orgs.add(&models.Organization{
		OwnerUserID:   owner,
		LegalName:     "Les Restos du Coeur",
		Email:         "contact@restos.fr",
		IsTaxEligible: true,
		IsPayoutReady: payoutReady,
	})
	if payoutReady {
		org.StripeAccountID = strptr("acct_asso")
	}
	return env.fundraisers.add(&models.Fundraiser{
		OwnerUserID:    owner,
		OrganizationID: &org.ID,
		Kind:           models.FundraiserKindAssociation,
		Currency:       "eur",
		PlanCode:       "ASSO_FREE",
		Status:         models.FundraiserStatusActive,
	})
}

func TestDonationService_SeparateChargeGetsNoReceipt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Tax-eligible organization that has not finished payout onboarding:
	// the checkout falls back to a separate charge through the platform.
	f := env.associationFundraiser(false)

	env.processor.On("CreateDonationCheckout", mock.Anything, mock.MatchedBy(func(p psp.DonationCheckoutParams) bool {
		return p.ConnectedAccountID == nil
	})).Return(&psp.CheckoutSession{SessionID: "cs_sep", URL: "https://checkout.test/cs_sep"}, nil)

	res, err := env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: f.ID,
		Amount:       60_00,
		DonorName:    "Jean",
		DonorEmail:   "jean@example.fr",
		DonorAddress: strptr("1 rue de la Paix, Paris"),
		WantsReceipt: true,
	})
	require.NoError(t, err)
	env.processor.AssertExpectations(t)

	d, err := env.donations.GetByID(ctx, res.DonationID)
	require.NoError(t, err)
	assert.False(t, d.IsDirectCharge)

	applied, err := env.donationSvc.CompleteFromProcessor(ctx, res.DonationID, strptr("cs_sep"), strptr("pi_sep"))
	require.NoError(t, err)
	require.True(t, applied)

	receipt, err := env.receiptSvc.GetForDonation(ctx, res.DonationID)
	require.NoError(t, err)
	assert.Nil(t, receipt, "a separate charge must never produce a tax receipt")
}

func TestDonationService_DirectChargeMintsReceipt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	f := env.associationFundraiser(true)

	env.processor.On("CreateDonationCheckout", mock.Anything, mock.MatchedBy(func(p psp.DonationCheckoutParams) bool {
		return p.ConnectedAccountID != nil && *p.ConnectedAccountID == "acct_asso"
	})).Return(&psp.CheckoutSession{SessionID: "cs_dir", URL: "https://checkout.test/cs_dir"}, nil)

	res, err := env.donationSvc.CreateCheckout(ctx, CreateCheckoutInput{
		FundraiserID: f.ID,
		Amount:       60_00,
		DonorName:    "Claire",
		DonorEmail:   "claire@example.fr",
		DonorAddress: strptr("2 rue des Lilas, Lyon"),
		WantsReceipt: true,
	})
	require.NoError(t, err)
	env.processor.AssertExpectations(t)

	d, err := env.donations.GetByID(ctx, res.DonationID)
	require.NoError(t, err)
	assert.True(t, d.IsDirectCharge)

	applied, err := env.donationSvc.CompleteFromProcessor(ctx, res.DonationID, strptr("cs_dir"), strptr("pi_dir"))
	require.NoError(t, err)
	require.True(t, applied)

	receipt, err := env.receiptSvc.GetForDonation(ctx, res.DonationID)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, models.TaxReceiptStatusPending, receipt.Status)
}
