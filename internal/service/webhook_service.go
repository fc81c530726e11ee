package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"

	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
)

// WebhookEventRepository durably records processed event ids.
type WebhookEventRepository interface {
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// dedupCapacity bounds the in-memory recent-event cache. When it fills up
// the oldest half is evicted; the durable event table and the conditional
// status transitions still hold the idempotency line for evicted ids.
const dedupCapacity = 10000

// WebhookService ingests processor events and dispatches them to the
// domain services. Handler errors are logged and swallowed: the endpoint
// acknowledges everything after signature verification so the processor
// retries instead of disabling the endpoint, and retries are safe because
// every transition is conditional.
type WebhookService struct {
	donations     *DonationService
	fundraisers   *FundraiserService
	organizations *OrganizationService
	events        WebhookEventRepository

	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
}

func NewWebhookService(
	donations *DonationService,
	fundraisers *FundraiserService,
	organizations *OrganizationService,
	events WebhookEventRepository,
) *WebhookService {
	return &WebhookService{
		donations:     donations,
		fundraisers:   fundraisers,
		organizations: organizations,
		events:        events,
		seen:          make(map[string]struct{}),
	}
}

// HandleEvent processes one verified event. It never returns an error: by
// the time we are here the signature has been checked and the only correct
// HTTP answer is 200.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event) {
	log := logger.Log.WithField("event_id", event.ID).WithField("event_type", string(event.Type))

	if s.seenRecently(event.ID) {
		log.Debug("webhook: duplicate delivery, cached")
		return
	}

	fresh, err := s.events.MarkProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		// Best effort: the conditional transitions downstream stay safe.
		log.Warnf("webhook: durable dedup unavailable: %v", err)
	} else if !fresh {
		log.Debug("webhook: duplicate delivery, already recorded")
		return
	}

	if err := s.dispatch(ctx, event); err != nil {
		log.Errorf("webhook: handler failed: %v", err)
	}
}

func (s *WebhookService) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "payment_intent.succeeded":
		// The money-movement side effects ride on checkout.session.completed;
		// this one is kept for monitoring only.
		logger.Log.WithField("event_id", event.ID).Debug("payment_intent.succeeded observed")
		return nil
	case "payment_intent.payment_failed":
		return s.handlePaymentFailed(ctx, event)
	case "charge.refunded":
		return s.handleChargeRefunded(ctx, event)
	case "charge.dispute.created":
		return s.handleDisputeCreated(ctx, event)
	case "account.updated":
		return s.handleAccountUpdated(ctx, event)
	default:
		logger.Log.WithField("event_type", string(event.Type)).Debug("webhook: unhandled event type")
		return nil
	}
}

func (s *WebhookService) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed checkout.session.completed payload")
	}

	switch session.Metadata["type"] {
	case "donation":
		donationID, err := uuid.Parse(session.Metadata["donation_id"])
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeValidation, "session carries no valid donation_id")
		}
		var intentID *string
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			intentID = &session.PaymentIntent.ID
		}
		sessionID := session.ID
		_, err = s.donations.CompleteFromProcessor(ctx, donationID, &sessionID, intentID)
		return err

	case "plan":
		fundraiserID, err := uuid.Parse(session.Metadata["fundraiser_id"])
		if err != nil {
			return apperror.Wrap(err, apperror.ErrCodeValidation, "session carries no valid fundraiser_id")
		}
		return s.fundraisers.ActivateFromPlanPayment(ctx, fundraiserID)

	default:
		logger.Log.WithField("session_id", session.ID).Debug("webhook: session without a known type, ignoring")
		return nil
	}
}

func (s *WebhookService) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed payment_intent.payment_failed payload")
	}

	donationID, err := uuid.Parse(intent.Metadata["donation_id"])
	if err != nil {
		logger.Log.WithField("payment_intent", intent.ID).Debug("payment failure without donation metadata, ignoring")
		return nil
	}

	if intent.LastPaymentError != nil {
		logger.Log.WithField("donation_id", donationID).
			Infof("payment failed: %s", intent.LastPaymentError.Msg)
	}
	return s.donations.FailFromProcessor(ctx, donationID)
}

func (s *WebhookService) handleChargeRefunded(ctx context.Context, event *stripe.Event) error {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed charge.refunded payload")
	}
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		logger.Log.WithField("charge_id", charge.ID).Debug("refund without payment intent, ignoring")
		return nil
	}
	return s.donations.RefundByPaymentIntent(ctx, charge.PaymentIntent.ID)
}

func (s *WebhookService) handleDisputeCreated(ctx context.Context, event *stripe.Event) error {
	var dispute stripe.Dispute
	if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed charge.dispute.created payload")
	}
	if dispute.PaymentIntent == nil || dispute.PaymentIntent.ID == "" {
		logger.Log.WithField("dispute_id", dispute.ID).Debug("dispute without payment intent, ignoring")
		return nil
	}
	return s.donations.DisputeByPaymentIntent(ctx, dispute.PaymentIntent.ID, string(dispute.Reason))
}

func (s *WebhookService) handleAccountUpdated(ctx context.Context, event *stripe.Event) error {
	var account stripe.Account
	if err := json.Unmarshal(event.Data.Raw, &account); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, "malformed account.updated payload")
	}
	return s.organizations.UpdatePayoutReadiness(ctx, account.ID, account.ChargesEnabled, account.PayoutsEnabled)
}

// seenRecently records the event id and reports whether it was already
// present. Insertion order is tracked so eviction drops the oldest half.
func (s *WebhookService) seenRecently(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[eventID]; ok {
		return true
	}

	if len(s.seen) >= dedupCapacity {
		evict := s.order[:len(s.order)/2]
		for _, id := range evict {
			delete(s.seen, id)
		}
		s.order = append([]string(nil), s.order[len(s.order)/2:]...)
	}

	s.seen[eventID] = struct{}{}
	s.order = append(s.order, eventID)
	return false
}
