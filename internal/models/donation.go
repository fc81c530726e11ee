package models

import (
	"time"

	"github.com/google/uuid"
)

// Donation statuses.
const (
	DonationStatusPending   = "PENDING"
	DonationStatusCompleted = "COMPLETED"
	DonationStatusFailed    = "FAILED"
	DonationStatusRefunded  = "REFUNDED"
	DonationStatusDisputed  = "DISPUTED"
)

// Donation is created PENDING when a checkout session is built and is mutated
// only by webhook transitions or the reconciliation sweep afterwards.
// Amounts are in minor currency units.
type Donation struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	FundraiserID          uuid.UUID  `db:"fundraiser_id" json:"fundraiser_id"`
	Amount                int64      `db:"amount" json:"amount"`
	TipAmount             int64      `db:"tip_amount" json:"tip_amount"`
	Currency              string     `db:"currency" json:"currency"`
	DonorName             string     `db:"donor_name" json:"donor_name"`
	DonorEmail            string     `db:"donor_email" json:"-"`
	DonorMessage          *string    `db:"donor_message" json:"donor_message,omitempty"`
	DonorAddress          *string    `db:"donor_address" json:"-"`
	IsAnonymous           bool       `db:"is_anonymous" json:"is_anonymous"`
	WantsReceipt          bool       `db:"wants_receipt" json:"wants_receipt"`
	IsDirectCharge        bool       `db:"is_direct_charge" json:"-"`
	Status                string     `db:"status" json:"status"`
	StripeSessionID       *string    `db:"stripe_session_id" json:"-"`
	StripePaymentIntentID *string    `db:"stripe_payment_intent_id" json:"-"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	CompletedAt           *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
