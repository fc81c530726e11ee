package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/repository"
)

// ReceiptRepository mints and cancels tax receipts.
type ReceiptRepository interface {
	Mint(ctx context.Context, donationID, organizationID uuid.UUID, year int) (*models.TaxReceipt, error)
	CancelByDonation(ctx context.Context, donationID uuid.UUID) (bool, error)
	GetByDonation(ctx context.Context, donationID uuid.UUID) (*models.TaxReceipt, error)
	ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]models.TaxReceipt, error)
}

// ReceiptService issues CERFA tax receipts for completed donations to
// tax-eligible associations. Numbering is sequential per organization and
// fiscal year with no gaps, which the repository guarantees.
type ReceiptService struct {
	receipts ReceiptRepository
	orgs     OrganizationRepository
	audit    *AuditService
}

func NewReceiptService(receipts ReceiptRepository, orgs OrganizationRepository, audit *AuditService) *ReceiptService {
	return &ReceiptService{receipts: receipts, orgs: orgs, audit: audit}
}

// MintForDonation issues a receipt for the donation if the organization is
// tax-eligible. Returns nil without error when the organization is not
// eligible or a receipt already exists for this donation.
func (s *ReceiptService) MintForDonation(ctx context.Context, donationID, organizationID uuid.UUID) (*models.TaxReceipt, error) {
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if !org.IsTaxEligible {
		logger.Log.WithField("organization_id", organizationID).Debug("receipt skipped: organization not tax-eligible")
		return nil, nil
	}

	receipt, err := s.receipts.Mint(ctx, donationID, organizationID, time.Now().UTC().Year())
	if err != nil {
		if errors.Is(err, repository.ErrReceiptExists) {
			return nil, nil
		}
		return nil, err
	}

	s.audit.Record(nil, "receipt.minted", "tax_receipt", receipt.ID.String(), map[string]interface{}{
		"receipt_number": receipt.ReceiptNumber,
		"donation_id":    donationID,
	})
	return receipt, nil
}

// CancelForDonation voids the receipt attached to a refunded donation.
// A donation without a receipt is not an error.
func (s *ReceiptService) CancelForDonation(ctx context.Context, donationID uuid.UUID) error {
	cancelled, err := s.receipts.CancelByDonation(ctx, donationID)
	if err != nil {
		return err
	}
	if cancelled {
		s.audit.Record(nil, "receipt.cancelled", "donation", donationID.String(), nil)
	}
	return nil
}

// GetForDonation returns the receipt for a donation, nil when none exists.
func (s *ReceiptService) GetForDonation(ctx context.Context, donationID uuid.UUID) (*models.TaxReceipt, error) {
	return s.receipts.GetByDonation(ctx, donationID)
}

// ListForOrganization returns receipts issued by the organization, the
// caller must be its owner.
func (s *ReceiptService) ListForOrganization(ctx context.Context, userID, organizationID uuid.UUID, limit, offset int) ([]models.TaxReceipt, error) {
	org, err := s.orgs.GetByID(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if org.OwnerUserID != userID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "organization belongs to another user")
	}
	return s.receipts.ListByOrganization(ctx, organizationID, limit, offset)
}
