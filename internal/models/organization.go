package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the legal entity behind association fundraisers. It is
// payout-ready once its Stripe Connect account has charges and payouts
// enabled; tax eligibility gates CERFA receipt generation.
type Organization struct {
	ID              uuid.UUID `db:"id" json:"id"`
	OwnerUserID     uuid.UUID `db:"owner_user_id" json:"owner_user_id"`
	LegalName       string    `db:"legal_name" json:"legal_name"`
	Email           string    `db:"email" json:"email"`
	Siret           *string   `db:"siret" json:"siret,omitempty"`
	StripeAccountID *string   `db:"stripe_account_id" json:"-"`
	IsPayoutReady   bool      `db:"is_payout_ready" json:"is_payout_ready"`
	IsTaxEligible   bool      `db:"is_tax_eligible" json:"is_tax_eligible"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}
