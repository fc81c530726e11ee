package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/plans"
	"github.com/AmazingeventParis/Kooki/internal/psp"
	"github.com/AmazingeventParis/Kooki/internal/tip"
)

// DonationRepository is the persistence surface the donation flow needs.
type DonationRepository interface {
	Create(ctx context.Context, d *models.Donation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error)
	GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Donation, error)
	SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error
	MarkCompleted(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID *string) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkDisputed(ctx context.Context, id uuid.UUID) (bool, error)
	ListCompleted(ctx context.Context, fundraiserID uuid.UUID, limit, offset int) ([]models.Donation, error)
	CountCompleted(ctx context.Context, fundraiserID uuid.UUID) (int, error)
	OldestCompleted(ctx context.Context, fundraiserID uuid.UUID) (*models.Donation, error)
	ListPendingWithSession(ctx context.Context) ([]models.Donation, error)
}

// FundraiserRepository is the persistence surface shared by the donation,
// fundraiser and withdrawal flows.
type FundraiserRepository interface {
	Create(ctx context.Context, f *models.Fundraiser) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Fundraiser, error)
	GetBySlug(ctx context.Context, slug string) (*models.Fundraiser, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Fundraiser, error)
	IncrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error)
	DecrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error)
	CompleteIfCeilingReached(ctx context.Context, id uuid.UUID) (bool, error)
	MarkOpeningFeePaid(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

// ProcessorClient is the payment processor surface used by the services.
type ProcessorClient interface {
	CreateDonationCheckout(ctx context.Context, p psp.DonationCheckoutParams) (*psp.CheckoutSession, error)
	CreatePlanCheckout(ctx context.Context, fundraiserID uuid.UUID, planName string, priceCents int64, userID uuid.UUID) (*psp.CheckoutSession, error)
	CreateTransfer(ctx context.Context, amount int64, currency, destinationAccountID, transferGroup string, metadata map[string]string) (*psp.Transfer, error)
	CreateConnectAccount(ctx context.Context, email, businessName, country string) (string, error)
	CreateAccountLink(ctx context.Context, accountID string) (string, error)
	GetAccountStatus(ctx context.Context, accountID string) (*psp.AccountStatus, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*psp.SessionStatus, error)
}

// DonationService owns the donation lifecycle: checkout session creation,
// processor-driven state transitions, public listing and the reconciliation
// sweep for lost webhooks.
type DonationService struct {
	donations     DonationRepository
	fundraisers   FundraiserRepository
	organizations OrganizationRepository
	processor     ProcessorClient
	receipts      *ReceiptService
	audit         *AuditService
	notifications *NotificationService
}

func NewDonationService(
	donations DonationRepository,
	fundraisers FundraiserRepository,
	organizations OrganizationRepository,
	processor ProcessorClient,
	receipts *ReceiptService,
	audit *AuditService,
	notifications *NotificationService,
) *DonationService {
	return &DonationService{
		donations:     donations,
		fundraisers:   fundraisers,
		organizations: organizations,
		processor:     processor,
		receipts:      receipts,
		audit:         audit,
		notifications: notifications,
	}
}

// CreateCheckoutInput is a donor's checkout request. Amounts are in cents.
type CreateCheckoutInput struct {
	FundraiserID uuid.UUID
	Amount       int64
	TipAmount    int64
	DonorName    string
	DonorEmail   string
	DonorMessage *string
	DonorAddress *string
	IsAnonymous  bool
	WantsReceipt bool
}

// CheckoutResult is returned to the donor's browser for redirection.
type CheckoutResult struct {
	DonationID uuid.UUID `json:"donation_id"`
	SessionID  string    `json:"session_id"`
	URL        string    `json:"url"`
}

// CreateCheckout validates the donation, records it PENDING and builds the
// checkout session. The ceiling check here is advisory only: concurrent
// checkouts may overshoot, and the authoritative total is settled by the
// atomic increment on completion.
func (s *DonationService) CreateCheckout(ctx context.Context, in CreateCheckoutInput) (*CheckoutResult, error) {
	if in.Amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "donation amount must be positive")
	}
	if in.DonorEmail == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "donor email is required")
	}

	f, err := s.fundraisers.GetByID(ctx, in.FundraiserID)
	if err != nil {
		return nil, err
	}
	if f.Status != models.FundraiserStatusActive {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "fundraiser is not accepting donations (status %s)", f.Status)
	}
	ceiling := plans.Unbounded()
	if f.MaxAmount != nil {
		ceiling = plans.Bounded(*f.MaxAmount)
	}
	if remaining, bounded := ceiling.Remaining(f.CurrentAmount); bounded && in.Amount > remaining {
		return nil, apperror.Newf(apperror.ErrCodeValidation,
			"donation exceeds the fundraiser ceiling, at most %d cents can still be donated", remaining)
	}

	if in.WantsReceipt {
		if f.Kind != models.FundraiserKindAssociation {
			return nil, apperror.New(apperror.ErrCodeValidation, "tax receipts are only available for association fundraisers")
		}
		if in.DonorAddress == nil || *in.DonorAddress == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "a postal address is required for a tax receipt")
		}
	}

	tipAmount := tip.Validate(in.TipAmount)

	// Direct charge requires an onboarded, payout-ready organization account;
	// everything else goes through the platform account (separate charge).
	// The decision is persisted because receipt eligibility depends on it.
	var connectedAccount *string
	if f.Kind == models.FundraiserKindAssociation && f.OrganizationID != nil {
		org, err := s.organizations.GetByID(ctx, *f.OrganizationID)
		if err != nil {
			return nil, err
		}
		if org.StripeAccountID != nil && org.IsPayoutReady {
			connectedAccount = org.StripeAccountID
		}
	}

	donation := &models.Donation{
		FundraiserID:   f.ID,
		Amount:         in.Amount,
		TipAmount:      tipAmount,
		Currency:       f.Currency,
		DonorName:      in.DonorName,
		DonorEmail:     in.DonorEmail,
		DonorMessage:   in.DonorMessage,
		DonorAddress:   in.DonorAddress,
		IsAnonymous:    in.IsAnonymous,
		WantsReceipt:   in.WantsReceipt,
		IsDirectCharge: connectedAccount != nil,
		Status:         models.DonationStatusPending,
	}
	if err := s.donations.Create(ctx, donation); err != nil {
		return nil, err
	}

	session, err := s.processor.CreateDonationCheckout(ctx, psp.DonationCheckoutParams{
		DonationID:         donation.ID,
		FundraiserID:       f.ID,
		FundraiserSlug:     f.Slug,
		FundraiserKind:     f.Kind,
		Amount:             in.Amount,
		TipAmount:          tipAmount,
		Currency:           f.Currency,
		DonorEmail:         in.DonorEmail,
		DonorName:          in.DonorName,
		ConnectedAccountID: connectedAccount,
	})
	if err != nil {
		// The donation stays PENDING with no session attached; it will never
		// complete and is invisible to balances and listings.
		return nil, err
	}

	if err := s.donations.SetStripeSession(ctx, donation.ID, session.SessionID); err != nil {
		return nil, err
	}

	s.audit.Record(nil, "donation.checkout_created", "donation", donation.ID.String(), map[string]interface{}{
		"fundraiser_id": f.ID,
		"amount":        in.Amount,
		"tip_amount":    tipAmount,
	})

	return &CheckoutResult{DonationID: donation.ID, SessionID: session.SessionID, URL: session.URL}, nil
}

// TipSuggestion exposes the suggested tip for a donation amount.
func (s *DonationService) TipSuggestion(donationCents int64) int64 {
	return tip.Suggestion(donationCents)
}

// CompleteFromProcessor applies a successful payment to the donation.
// It is idempotent: the PENDING guard on the status transition makes repeat
// deliveries no-ops, so the fundraiser total is incremented exactly once.
// Returns false when the donation had already left PENDING.
func (s *DonationService) CompleteFromProcessor(ctx context.Context, donationID uuid.UUID, sessionID, paymentIntentID *string) (bool, error) {
	d, err := s.donations.GetByID(ctx, donationID)
	if err != nil {
		return false, err
	}

	completed, err := s.donations.MarkCompleted(ctx, d.ID, sessionID, paymentIntentID)
	if err != nil {
		return false, err
	}
	if !completed {
		logger.Log.WithField("donation_id", d.ID).Debug("donation already settled, skipping")
		return false, nil
	}

	newTotal, err := s.fundraisers.IncrementAmount(ctx, d.FundraiserID, d.Amount)
	if err != nil {
		return false, err
	}

	ceilingReached, err := s.fundraisers.CompleteIfCeilingReached(ctx, d.FundraiserID)
	if err != nil {
		return false, err
	}

	f, err := s.fundraisers.GetByID(ctx, d.FundraiserID)
	if err != nil {
		return false, err
	}

	// Only direct charges are receipt-eligible: a separate charge routes the
	// money through the platform account, so the organization never receives
	// it directly and cannot attest the gift.
	if d.WantsReceipt && d.IsDirectCharge && f.OrganizationID != nil {
		// A receipt failure must not undo the payment transition.
		if _, err := s.receipts.MintForDonation(ctx, d.ID, *f.OrganizationID); err != nil {
			logger.Log.WithField("donation_id", d.ID).Errorf("receipt mint failed: %v", err)
		}
	}

	s.audit.Record(nil, "donation.completed", "donation", d.ID.String(), map[string]interface{}{
		"fundraiser_id": d.FundraiserID,
		"amount":        d.Amount,
		"new_total":     newTotal,
	})
	s.notifications.Notify(f.OwnerUserID, "donation.received", map[string]interface{}{
		"fundraiser_id": f.ID,
		"amount":        d.Amount,
		"donor_name":    publicDonorName(d.IsAnonymous, d.DonorName),
	})
	if ceilingReached {
		s.notifications.Notify(f.OwnerUserID, "fundraiser.completed", map[string]interface{}{
			"fundraiser_id": f.ID,
			"total":         newTotal,
		})
	}

	return true, nil
}

// FailFromProcessor marks a donation failed after a declined payment.
func (s *DonationService) FailFromProcessor(ctx context.Context, donationID uuid.UUID) error {
	failed, err := s.donations.MarkFailed(ctx, donationID)
	if err != nil {
		return err
	}
	if failed {
		s.audit.Record(nil, "donation.failed", "donation", donationID.String(), nil)
	}
	return nil
}

// RefundByPaymentIntent reverses a completed donation: the fundraiser total
// is decremented by the original donation amount (never the refund amount,
// which may differ for partial refunds) and any tax receipt is cancelled.
func (s *DonationService) RefundByPaymentIntent(ctx context.Context, paymentIntentID string) error {
	d, err := s.donations.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}

	refunded, err := s.donations.MarkRefunded(ctx, d.ID)
	if err != nil {
		return err
	}
	if !refunded {
		logger.Log.WithField("donation_id", d.ID).Debug("refund for a donation not in COMPLETED, skipping")
		return nil
	}

	if _, err := s.fundraisers.DecrementAmount(ctx, d.FundraiserID, d.Amount); err != nil {
		return err
	}
	if err := s.receipts.CancelForDonation(ctx, d.ID); err != nil {
		logger.Log.WithField("donation_id", d.ID).Errorf("receipt cancel failed: %v", err)
	}

	s.audit.Record(nil, "donation.refunded", "donation", d.ID.String(), map[string]interface{}{
		"fundraiser_id": d.FundraiserID,
		"amount":        d.Amount,
	})
	return nil
}

// DisputeByPaymentIntent flags a donation as charged back. The fundraiser
// total is left untouched until the dispute resolves.
func (s *DonationService) DisputeByPaymentIntent(ctx context.Context, paymentIntentID, reason string) error {
	d, err := s.donations.GetByPaymentIntent(ctx, paymentIntentID)
	if err != nil {
		return err
	}

	disputed, err := s.donations.MarkDisputed(ctx, d.ID)
	if err != nil {
		return err
	}
	if disputed {
		s.audit.Record(nil, "donation.disputed", "donation", d.ID.String(), map[string]interface{}{
			"reason": reason,
		})
	}
	return nil
}

// PublicDonation is a donation as shown on the public fundraiser page.
type PublicDonation struct {
	ID          uuid.UUID `json:"id"`
	DonorName   string    `json:"donor_name"`
	Amount      int64     `json:"amount"`
	Message     *string   `json:"message,omitempty"`
	CompletedAt *string   `json:"completed_at,omitempty"`
}

// ListByFundraiser returns completed donations for the public page, with
// anonymous donors masked.
func (s *DonationService) ListByFundraiser(ctx context.Context, fundraiserID uuid.UUID, limit, offset int) ([]PublicDonation, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	donations, err := s.donations.ListCompleted(ctx, fundraiserID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.donations.CountCompleted(ctx, fundraiserID)
	if err != nil {
		return nil, 0, err
	}

	out := make([]PublicDonation, 0, len(donations))
	for _, d := range donations {
		p := PublicDonation{
			ID:        d.ID,
			DonorName: publicDonorName(d.IsAnonymous, d.DonorName),
			Amount:    d.Amount,
			Message:   d.DonorMessage,
		}
		if d.CompletedAt != nil {
			ts := d.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
			p.CompletedAt = &ts
		}
		out = append(out, p)
	}
	return out, total, nil
}

// ReconcilePending sweeps donations stuck in PENDING with a session attached
// and settles those the processor reports as paid. Covers lost webhooks; the
// conditional transition in CompleteFromProcessor keeps a concurrent webhook
// harmless.
func (s *DonationService) ReconcilePending(ctx context.Context) error {
	pending, err := s.donations.ListPendingWithSession(ctx)
	if err != nil {
		return err
	}

	for _, d := range pending {
		status, err := s.processor.RetrieveCheckoutSession(ctx, *d.StripeSessionID)
		if err != nil {
			logger.Log.WithField("donation_id", d.ID).Warnf("reconcile: session lookup failed: %v", err)
			continue
		}
		if !status.Paid {
			continue
		}

		var intentID *string
		if status.PaymentIntentID != "" {
			intentID = &status.PaymentIntentID
		}
		applied, err := s.CompleteFromProcessor(ctx, d.ID, d.StripeSessionID, intentID)
		if err != nil {
			logger.Log.WithField("donation_id", d.ID).Errorf("reconcile: completion failed: %v", err)
			continue
		}
		if applied {
			logger.Log.WithField("donation_id", d.ID).Info("reconcile: settled donation missed by webhooks")
		}
	}
	return nil
}

func publicDonorName(anonymous bool, name string) string {
	if anonymous || name == "" {
		return "Anonyme"
	}
	return name
}
