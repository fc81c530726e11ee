package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
)

var (
	ErrOrganizationNotFound = apperror.ErrOrganizationNotFound
	ErrOrganizationExists   = apperror.New(apperror.ErrCodeConflict, "user already has an organization")
)

type OrganizationRepository struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sqlx.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, o *models.Organization) error {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM organizations WHERE owner_user_id = $1)`, o.OwnerUserID)
	if err != nil {
		return fmt.Errorf("organization repository: check existing: %w", err)
	}
	if exists {
		return ErrOrganizationExists
	}

	query := `
		INSERT INTO organizations (owner_user_id, legal_name, email, siret, is_tax_eligible)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_payout_ready, created_at
	`
	row := r.db.QueryRowxContext(ctx, query, o.OwnerUserID, o.LegalName, o.Email, o.Siret, o.IsTaxEligible)
	if err := row.Scan(&o.ID, &o.IsPayoutReady, &o.CreatedAt); err != nil {
		return fmt.Errorf("organization repository: create: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := r.db.GetContext(ctx, &o, `SELECT * FROM organizations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrganizationRepository) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := r.db.GetContext(ctx, &o, `SELECT * FROM organizations WHERE owner_user_id = $1`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrganizationRepository) GetByStripeAccount(ctx context.Context, stripeAccountID string) (*models.Organization, error) {
	var o models.Organization
	err := r.db.GetContext(ctx, &o, `SELECT * FROM organizations WHERE stripe_account_id = $1`, stripeAccountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrganizationRepository) SetStripeAccount(ctx context.Context, id uuid.UUID, stripeAccountID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE organizations SET stripe_account_id = $2 WHERE id = $1`, id, stripeAccountID)
	if err != nil {
		return fmt.Errorf("organization repository: set stripe account: %w", err)
	}
	return nil
}

// SetPayoutReady updates the readiness flag; returns true when the value
// actually changed so callers can log/audit transitions only.
func (r *OrganizationRepository) SetPayoutReady(ctx context.Context, id uuid.UUID, ready bool) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET is_payout_ready = $2 WHERE id = $1 AND is_payout_ready <> $2
	`, id, ready)
	if err != nil {
		return false, fmt.Errorf("organization repository: set payout ready: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
