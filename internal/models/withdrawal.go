package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusFailed     = "FAILED"
)

// Withdrawal moves collected funds to the beneficiary's connected account.
// It is created PENDING and moves to PROCESSING only after the transfer has
// been accepted by the payment processor.
type Withdrawal struct {
	ID               uuid.UUID  `db:"id" json:"id"`
	FundraiserID     uuid.UUID  `db:"fundraiser_id" json:"fundraiser_id"`
	Amount           int64      `db:"amount" json:"amount"`
	Status           string     `db:"status" json:"status"`
	StripeTransferID *string    `db:"stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	FailureReason    *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}
