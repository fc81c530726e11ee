package models

import (
	"time"

	"github.com/google/uuid"
)

// Fundraiser kinds.
const (
	FundraiserKindPersonal    = "PERSONAL"
	FundraiserKindAssociation = "ASSOCIATION"
)

// Fundraiser statuses.
const (
	FundraiserStatusDraft     = "DRAFT"
	FundraiserStatusActive    = "ACTIVE"
	FundraiserStatusPaused    = "PAUSED"
	FundraiserStatusClosed    = "CLOSED"
	FundraiserStatusCompleted = "COMPLETED"
)

// Fundraiser is a collection page. CurrentAmount is a derived cache of the
// sum of completed donations, maintained incrementally by atomic updates.
// MaxAmount is nil for unbounded plans.
type Fundraiser struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	OwnerUserID    uuid.UUID  `db:"owner_user_id" json:"owner_user_id"`
	OrganizationID *uuid.UUID `db:"organization_id" json:"organization_id,omitempty"`
	Kind           string     `db:"kind" json:"kind"`
	Title          string     `db:"title" json:"title"`
	Slug           string     `db:"slug" json:"slug"`
	Description    string     `db:"description" json:"description"`
	Currency       string     `db:"currency" json:"currency"`
	PlanCode       string     `db:"plan_code" json:"plan_code"`
	MaxAmount      *int64     `db:"max_amount" json:"max_amount,omitempty"`
	CurrentAmount  int64      `db:"current_amount" json:"current_amount"`
	Status         string     `db:"status" json:"status"`
	OpeningFeePaid bool       `db:"opening_fee_paid" json:"opening_fee_paid"`
	CoverImageURL  *string    `db:"cover_image_url" json:"cover_image_url,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
