package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/psp"
)

// OrganizationRepository is the persistence surface for organizations.
type OrganizationRepository interface {
	Create(ctx context.Context, o *models.Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error)
	GetByStripeAccount(ctx context.Context, stripeAccountID string) (*models.Organization, error)
	SetStripeAccount(ctx context.Context, id uuid.UUID, stripeAccountID string) error
	SetPayoutReady(ctx context.Context, id uuid.UUID, ready bool) (bool, error)
}

// UserRepository is the persistence surface for accounts.
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role string) error
}

// OrganizationService manages legal entities and their Connect onboarding.
type OrganizationService struct {
	orgs          OrganizationRepository
	users         UserRepository
	processor     ProcessorClient
	audit         *AuditService
	notifications *NotificationService
}

func NewOrganizationService(
	orgs OrganizationRepository,
	users UserRepository,
	processor ProcessorClient,
	audit *AuditService,
	notifications *NotificationService,
) *OrganizationService {
	return &OrganizationService{
		orgs:          orgs,
		users:         users,
		processor:     processor,
		audit:         audit,
		notifications: notifications,
	}
}

// CreateOrganizationInput registers a legal entity for a user.
type CreateOrganizationInput struct {
	LegalName     string
	Email         string
	Siret         *string
	IsTaxEligible bool
}

// Create registers the organization and upgrades the owner to ORG_ADMIN.
// One organization per user.
func (s *OrganizationService) Create(ctx context.Context, ownerID uuid.UUID, in CreateOrganizationInput) (*models.Organization, error) {
	if in.LegalName == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "legal name is required")
	}
	if in.Email == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "contact email is required")
	}

	org := &models.Organization{
		OwnerUserID:   ownerID,
		LegalName:     in.LegalName,
		Email:         in.Email,
		Siret:         in.Siret,
		IsTaxEligible: in.IsTaxEligible,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, err
	}

	if err := s.users.UpdateRole(ctx, ownerID, models.RoleOrgAdmin); err != nil {
		logger.Log.WithField("user_id", ownerID).Errorf("organization: role upgrade failed: %v", err)
	}

	s.audit.Record(&ownerID, "organization.created", "organization", org.ID.String(), map[string]interface{}{
		"legal_name": in.LegalName,
	})
	return org, nil
}

// GetByOwner returns the caller's organization.
func (s *OrganizationService) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error) {
	return s.orgs.GetByOwner(ctx, ownerID)
}

// Onboard creates the Connect account on first call and returns a fresh
// onboarding link. Safe to call again to resume an interrupted onboarding.
func (s *OrganizationService) Onboard(ctx context.Context, ownerID uuid.UUID) (string, error) {
	org, err := s.orgs.GetByOwner(ctx, ownerID)
	if err != nil {
		return "", err
	}

	accountID := ""
	if org.StripeAccountID != nil {
		accountID = *org.StripeAccountID
	}
	if accountID == "" {
		accountID, err = s.processor.CreateConnectAccount(ctx, org.Email, org.LegalName, "FR")
		if err != nil {
			return "", err
		}
		if err := s.orgs.SetStripeAccount(ctx, org.ID, accountID); err != nil {
			return "", err
		}
		s.audit.Record(&ownerID, "organization.connect_account_created", "organization", org.ID.String(), nil)
	}

	return s.processor.CreateAccountLink(ctx, accountID)
}

// PayoutStatus returns the live payout-readiness of the caller's account.
func (s *OrganizationService) PayoutStatus(ctx context.Context, ownerID uuid.UUID) (*psp.AccountStatus, error) {
	org, err := s.orgs.GetByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if org.StripeAccountID == nil || *org.StripeAccountID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "payout onboarding has not been started")
	}
	return s.processor.GetAccountStatus(ctx, *org.StripeAccountID)
}

// UpdatePayoutReadiness mirrors an account.updated event into the local
// payout-ready flag. Unknown accounts are ignored, not errors: test-mode
// accounts of other platforms can share a webhook endpoint.
func (s *OrganizationService) UpdatePayoutReadiness(ctx context.Context, stripeAccountID string, chargesEnabled, payoutsEnabled bool) error {
	org, err := s.orgs.GetByStripeAccount(ctx, stripeAccountID)
	if err != nil {
		if apperror.IsNotFound(err) {
			logger.Log.WithField("account_id", stripeAccountID).Debug("account.updated for unknown account, ignoring")
			return nil
		}
		return err
	}

	ready := chargesEnabled && payoutsEnabled
	changed, err := s.orgs.SetPayoutReady(ctx, org.ID, ready)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.audit.Record(nil, "organization.payout_readiness_changed", "organization", org.ID.String(), map[string]interface{}{
		"is_payout_ready": ready,
	})
	if ready {
		s.notifications.Notify(org.OwnerUserID, "organization.payouts_enabled", map[string]interface{}{
			"organization_id": org.ID,
		})
	}
	return nil
}
