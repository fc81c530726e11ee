package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/plans"
	"github.com/AmazingeventParis/Kooki/internal/repository"
)

// WithdrawalRepository is the persistence surface for withdrawals.
type WithdrawalRepository interface {
	CreateWithBalanceGuard(ctx context.Context, fundraiserID uuid.UUID, amount int64) (*models.Withdrawal, int64, error)
	AvailableBalance(ctx context.Context, fundraiserID uuid.UUID) (int64, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, transferID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Withdrawal, error)
}

// WithdrawalService moves collected funds to the beneficiary's connected
// account. Requests for the same fundraiser are serialized by a per-fundraiser
// mutex on top of the repository's row lock, so two concurrent requests can
// never both pass the balance check.
type WithdrawalService struct {
	withdrawals   WithdrawalRepository
	fundraisers   FundraiserRepository
	donations     DonationRepository
	organizations OrganizationRepository
	processor     ProcessorClient
	audit         *AuditService
	notifications *NotificationService

	locks sync.Map // fundraiser id -> *sync.Mutex
	now   func() time.Time
}

func NewWithdrawalService(
	withdrawals WithdrawalRepository,
	fundraisers FundraiserRepository,
	donations DonationRepository,
	organizations OrganizationRepository,
	processor ProcessorClient,
	audit *AuditService,
	notifications *NotificationService,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawals:   withdrawals,
		fundraisers:   fundraisers,
		donations:     donations,
		organizations: organizations,
		processor:     processor,
		audit:         audit,
		notifications: notifications,
		now:           time.Now,
	}
}

// Request validates and executes a withdrawal. Checks run in a fixed order:
// amount, ownership, payout destination, plan delay, then balance under the
// fundraiser lock. The withdrawal is recorded PENDING before the transfer is
// submitted and moves to PROCESSING or FAILED depending on the outcome.
func (s *WithdrawalService) Request(ctx context.Context, userID, fundraiserID uuid.UUID, amount int64) (*models.Withdrawal, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "withdrawal amount must be positive")
	}

	f, err := s.fundraisers.GetByID(ctx, fundraiserID)
	if err != nil {
		return nil, err
	}
	if f.OwnerUserID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "fundraiser belongs to another user")
	}

	destination, err := s.payoutDestination(ctx, f)
	if err != nil {
		return nil, err
	}

	if err := s.checkPlanDelay(ctx, f); err != nil {
		return nil, err
	}

	mu := s.lockFor(f.ID)
	mu.Lock()
	defer mu.Unlock()

	w, available, err := s.withdrawals.CreateWithBalanceGuard(ctx, f.ID, amount)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, apperror.Newf(apperror.ErrCodeValidation,
				"insufficient balance: %d cents available", available)
		}
		return nil, err
	}

	transfer, err := s.processor.CreateTransfer(ctx, amount, f.Currency, destination, "fundraiser_"+f.ID.String(), map[string]string{
		"withdrawal_id": w.ID.String(),
		"fundraiser_id": f.ID.String(),
	})
	if err != nil {
		reason := err.Error()
		if markErr := s.withdrawals.MarkFailed(ctx, w.ID, reason); markErr != nil {
			return nil, markErr
		}
		s.audit.Record(&userID, "withdrawal.failed", "withdrawal", w.ID.String(), map[string]interface{}{
			"reason": reason,
		})
		return nil, apperror.Wrap(err, apperror.ErrCodeExternalService, "transfer could not be submitted")
	}

	if err := s.withdrawals.MarkProcessing(ctx, w.ID, transfer.ID); err != nil {
		return nil, err
	}
	w.Status = models.WithdrawalStatusProcessing
	w.StripeTransferID = &transfer.ID

	s.audit.Record(&userID, "withdrawal.processing", "withdrawal", w.ID.String(), map[string]interface{}{
		"fundraiser_id": f.ID,
		"amount":        amount,
		"transfer_id":   transfer.ID,
	})
	s.notifications.Notify(userID, "withdrawal.processing", map[string]interface{}{
		"withdrawal_id": w.ID,
		"amount":        amount,
	})
	return w, nil
}

// payoutDestination resolves and validates the connected account funds go
// to: the organization's account for association fundraisers, the owner's
// own onboarded account for personal ones.
func (s *WithdrawalService) payoutDestination(ctx context.Context, f *models.Fundraiser) (string, error) {
	var (
		org *models.Organization
		err error
	)
	if f.Kind == models.FundraiserKindAssociation {
		if f.OrganizationID == nil {
			return "", apperror.New(apperror.ErrCodeValidation, "fundraiser has no organization attached")
		}
		org, err = s.organizations.GetByID(ctx, *f.OrganizationID)
	} else {
		org, err = s.organizations.GetByOwner(ctx, f.OwnerUserID)
	}
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", apperror.New(apperror.ErrCodeValidation, "payout onboarding is required before withdrawing")
		}
		return "", err
	}

	if org.StripeAccountID == nil || *org.StripeAccountID == "" || !org.IsPayoutReady {
		return "", apperror.New(apperror.ErrCodeValidation, "payout onboarding is required before withdrawing")
	}
	return *org.StripeAccountID, nil
}

// checkPlanDelay enforces the plan's holding period, anchored on the first
// completed donation. Days remaining round up so a partially elapsed day
// still counts.
func (s *WithdrawalService) checkPlanDelay(ctx context.Context, f *models.Fundraiser) error {
	plan, err := plans.PlanFor(f.PlanCode)
	if err != nil {
		return apperror.Wrap(err, apperror.ErrCodeInternal, "fundraiser carries an unknown plan")
	}
	if plan.WithdrawDelayDays == 0 {
		return nil
	}

	oldest, err := s.donations.OldestCompleted(ctx, f.ID)
	if err != nil {
		return err
	}
	if oldest == nil {
		// Nothing collected yet; the balance check will reject anyway.
		return nil
	}

	anchor := oldest.CreatedAt
	if oldest.CompletedAt != nil {
		anchor = *oldest.CompletedAt
	}

	eligibleAt := anchor.Add(time.Duration(plan.WithdrawDelayDays) * 24 * time.Hour)
	now := s.now()
	if !now.Before(eligibleAt) {
		return nil
	}

	remaining := eligibleAt.Sub(now)
	days := int64(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return apperror.Newf(apperror.ErrCodeValidation,
		"%d day(s) remaining before withdrawal is available (%d-day delay on the %s plan)",
		days, plan.WithdrawDelayDays, plan.Code)
}

func (s *WithdrawalService) lockFor(fundraiserID uuid.UUID) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(fundraiserID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// AvailableBalance returns the withdrawable balance for display. The figure
// is advisory; Request re-checks under lock.
func (s *WithdrawalService) AvailableBalance(ctx context.Context, userID, fundraiserID uuid.UUID) (int64, error) {
	f, err := s.fundraisers.GetByID(ctx, fundraiserID)
	if err != nil {
		return 0, err
	}
	if f.OwnerUserID != userID {
		return 0, apperror.New(apperror.ErrCodeForbidden, "fundraiser belongs to another user")
	}
	return s.withdrawals.AvailableBalance(ctx, fundraiserID)
}

// ListByOwner returns the caller's withdrawals across all their fundraisers.
func (s *WithdrawalService) ListByOwner(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.withdrawals.ListByOwner(ctx, userID, limit, offset)
}
