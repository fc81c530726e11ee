// Package psp wraps the Stripe API: checkout sessions, Connect accounts,
// transfers and webhook signature verification. Calls use a bounded HTTP
// timeout and are never retried here; retry policy belongs to callers.
package psp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
)

type Client struct {
	api           *client.API
	webhookSecret string
	appURL        string
}

// NewClient builds a Stripe client with a bounded HTTP timeout.
func NewClient(secretKey, webhookSecret, appURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	return &Client{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
		appURL:        appURL,
	}
}

// CheckoutSession is the result of a created checkout session.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SessionStatus is the polled state of an existing checkout session.
type SessionStatus struct {
	Paid            bool
	PaymentIntentID string
}

// Transfer is a submitted transfer to a connected account.
type Transfer struct {
	ID string
}

// AccountStatus mirrors the payout-readiness flags of a Connect account.
type AccountStatus struct {
	ChargesEnabled   bool     `json:"charges_enabled"`
	PayoutsEnabled   bool     `json:"payouts_enabled"`
	DetailsSubmitted bool     `json:"details_submitted"`
	CurrentlyDue     []string `json:"currently_due"`
}

// DonationCheckoutParams carries everything needed to build a donation
// checkout session.
type DonationCheckoutParams struct {
	DonationID         uuid.UUID
	FundraiserID       uuid.UUID
	FundraiserSlug     string
	FundraiserKind     string
	Amount             int64
	TipAmount          int64
	Currency           string
	DonorEmail         string
	DonorName          string
	ConnectedAccountID *string
}

// directCharge reports whether the session must be built as a Direct Charge
// on the beneficiary's connected account. Only this topology is compatible
// with tax-deductible receipts: the charge legally occurs on the
// association's own account, with the tip as the platform's application fee.
func (p DonationCheckoutParams) directCharge() bool {
	return p.FundraiserKind == models.FundraiserKindAssociation &&
		p.ConnectedAccountID != nil && *p.ConnectedAccountID != ""
}

// donationSessionParams builds the Stripe request for either topology.
// Correlation metadata is attached to both the session and the underlying
// payment intent so any downstream event can be traced without a lookup.
func (c *Client) donationSessionParams(p DonationCheckoutParams) (*stripe.CheckoutSessionParams, bool) {
	direct := p.directCharge()
	total := p.Amount + p.TipAmount

	intentMeta := map[string]string{
		"donation_id":   p.DonationID.String(),
		"fundraiser_id": p.FundraiserID.String(),
		"type":          "donation",
		"tip_amount":    fmt.Sprintf("%d", p.TipAmount),
	}
	if !direct {
		intentMeta["donation_amount"] = fmt.Sprintf("%d", p.Amount)
	}

	intentData := &stripe.CheckoutSessionPaymentIntentDataParams{
		Metadata: intentMeta,
	}
	if direct {
		intentData.ApplicationFeeAmount = stripe.Int64(p.TipAmount)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(p.DonorEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(p.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Don - " + p.DonorName),
					},
					UnitAmount: stripe.Int64(total),
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: intentData,
		SuccessURL:        stripe.String(fmt.Sprintf("%s/c/%s?merci=true&session_id={CHECKOUT_SESSION_ID}", c.appURL, p.FundraiserSlug)),
		CancelURL:         stripe.String(fmt.Sprintf("%s/c/%s", c.appURL, p.FundraiserSlug)),
	}
	params.AddMetadata("donation_id", p.DonationID.String())
	params.AddMetadata("fundraiser_id", p.FundraiserID.String())
	params.AddMetadata("type", "donation")

	if direct {
		params.SetStripeAccount(*p.ConnectedAccountID)
	}
	return params, direct
}

// CreateDonationCheckout builds a checkout session for a donation, as a
// Direct Charge for onboarded associations and a Separate Charge otherwise.
func (c *Client) CreateDonationCheckout(ctx context.Context, p DonationCheckoutParams) (*CheckoutSession, error) {
	params, _ := c.donationSessionParams(p)
	params.Context = ctx

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: create donation checkout")
	}
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePlanCheckout builds a checkout session for a plan opening fee.
func (c *Client) CreatePlanCheckout(ctx context.Context, fundraiserID uuid.UUID, planName string, priceCents int64, userID uuid.UUID) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String("eur"),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(fmt.Sprintf("Plan %s - Kooki", planName)),
						Description: stripe.String("Frais d'ouverture de cagnotte"),
					},
					UnitAmount: stripe.Int64(priceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(fmt.Sprintf("%s/dashboard/cagnottes/%s?plan_paid=true", c.appURL, fundraiserID)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/dashboard/cagnottes/%s?plan_cancelled=true", c.appURL, fundraiserID)),
	}
	params.Context = ctx
	params.AddMetadata("type", "plan")
	params.AddMetadata("fundraiser_id", fundraiserID.String())
	params.AddMetadata("user_id", userID.String())

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: create plan checkout")
	}
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

// CreateTransfer moves funds from the platform account to a connected
// account (Separate Charge withdrawals).
func (c *Client) CreateTransfer(ctx context.Context, amount int64, currency, destinationAccountID, transferGroup string, metadata map[string]string) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amount),
		Currency:    stripe.String(strings.ToLower(currency)),
		Destination: stripe.String(destinationAccountID),
	}
	params.Context = ctx
	if transferGroup != "" {
		params.TransferGroup = stripe.String(transferGroup)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	transfer, err := c.api.Transfers.New(params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: create transfer")
	}
	return &Transfer{ID: transfer.ID}, nil
}

// CreateConnectAccount creates an Express account for a beneficiary.
func (c *Client) CreateConnectAccount(ctx context.Context, email, businessName, country string) (string, error) {
	if country == "" {
		country = "FR"
	}
	params := &stripe.AccountParams{
		Type:    stripe.String(string(stripe.AccountTypeExpress)),
		Country: stripe.String(country),
		Email:   stripe.String(email),
		BusinessProfile: &stripe.AccountBusinessProfileParams{
			Name: stripe.String(businessName),
		},
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	params.Context = ctx

	account, err := c.api.Accounts.New(params)
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: create connect account")
	}
	return account.ID, nil
}

// CreateAccountLink generates an onboarding link for a Connect account.
func (c *Client) CreateAccountLink(ctx context.Context, accountID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(c.appURL + "/dashboard/organisation/onboarding?refresh=true"),
		ReturnURL:  stripe.String(c.appURL + "/dashboard/organisation/onboarding?success=true"),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := c.api.AccountLinks.New(params)
	if err != nil {
		return "", apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: create account link")
	}
	return link.URL, nil
}

// GetAccountStatus retrieves the payout-readiness flags of an account.
func (c *Client) GetAccountStatus(ctx context.Context, accountID string) (*AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	account, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: get account status")
	}

	status := &AccountStatus{
		ChargesEnabled:   account.ChargesEnabled,
		PayoutsEnabled:   account.PayoutsEnabled,
		DetailsSubmitted: account.DetailsSubmitted,
		CurrentlyDue:     []string{},
	}
	if account.Requirements != nil {
		status.CurrentlyDue = account.Requirements.CurrentlyDue
	}
	return status, nil
}

// RetrieveCheckoutSession polls an existing session; used by the
// reconciliation sweep for completion events that never arrived.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := c.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "stripe: retrieve checkout session")
	}

	status := &SessionStatus{
		Paid: session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
	}
	if session.PaymentIntent != nil {
		status.PaymentIntentID = session.PaymentIntent.ID
	}
	return status, nil
}

// VerifyAndParse checks the webhook signature and decodes the event.
// A missing or invalid signature is the one webhook failure surfaced to the
// processor as a client error.
func (c *Client) VerifyAndParse(rawBody []byte, signature string) (*stripe.Event, error) {
	if signature == "" {
		return nil, apperror.New(apperror.ErrCodeSignature, "missing stripe signature header")
	}
	if c.webhookSecret == "" {
		return nil, apperror.New(apperror.ErrCodeSignature, "webhook secret not configured")
	}

	event, err := webhook.ConstructEvent(rawBody, signature, c.webhookSecret)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeSignature, "invalid webhook signature")
	}
	return &event, nil
}
