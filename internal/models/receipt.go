package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	TaxReceiptStatusPending   = "PENDING"
	TaxReceiptStatusGenerated = "GENERATED"
	TaxReceiptStatusSent      = "SENT"
	TaxReceiptStatusCancelled = "CANCELLED"
)

// TaxReceipt is a CERFA tax-deduction receipt, minted at most once per
// eligible completed donation and cancelled when the donation is refunded.
type TaxReceipt struct {
	ID             uuid.UUID `db:"id" json:"id"`
	DonationID     uuid.UUID `db:"donation_id" json:"donation_id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	ReceiptNumber  string    `db:"receipt_number" json:"receipt_number"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
