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

var ErrFundraiserNotFound = apperror.ErrFundraiserNotFound

type FundraiserRepository struct {
	db *sqlx.DB
}

func NewFundraiserRepository(db *sqlx.DB) *FundraiserRepository {
	return &FundraiserRepository{db: db}
}

func (r *FundraiserRepository) Create(ctx context.Context, f *models.Fundraiser) error {
	query := `
		INSERT INTO fundraisers (owner_user_id, organization_id, kind, title, slug, description,
			currency, plan_code, max_amount, status, opening_fee_paid, cover_image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, current_amount, created_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		f.OwnerUserID, f.OrganizationID, f.Kind, f.Title, f.Slug, f.Description,
		f.Currency, f.PlanCode, f.MaxAmount, f.Status, f.OpeningFeePaid, f.CoverImageURL)
	if err := row.Scan(&f.ID, &f.CurrentAmount, &f.CreatedAt); err != nil {
		return fmt.Errorf("fundraiser repository: create: %w", err)
	}
	return nil
}

func (r *FundraiserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Fundraiser, error) {
	var f models.Fundraiser
	err := r.db.GetContext(ctx, &f, `SELECT * FROM fundraisers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFundraiserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FundraiserRepository) GetBySlug(ctx context.Context, slug string) (*models.Fundraiser, error) {
	var f models.Fundraiser
	err := r.db.GetContext(ctx, &f, `SELECT * FROM fundraisers WHERE slug = $1`, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFundraiserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FundraiserRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Fundraiser, error) {
	var out []models.Fundraiser
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM fundraisers WHERE owner_user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	return out, err
}

// IncrementAmount atomically adds amount to the collected total at the
// storage layer and returns the new total. Never read-modify-write in
// application code: two completions racing would lose an update.
func (r *FundraiserRepository) IncrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	var newTotal int64
	err := r.db.GetContext(ctx, &newTotal, `
		UPDATE fundraisers SET current_amount = current_amount + $2 WHERE id = $1
		RETURNING current_amount
	`, id, amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrFundraiserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fundraiser repository: increment amount: %w", err)
	}
	return newTotal, nil
}

// DecrementAmount atomically subtracts amount (refund reversal).
func (r *FundraiserRepository) DecrementAmount(ctx context.Context, id uuid.UUID, amount int64) (int64, error) {
	return r.IncrementAmount(ctx, id, -amount)
}

// CompleteIfCeilingReached flips an Active fundraiser to Completed once its
// collected total has reached the plan ceiling. Unbounded fundraisers
// (max_amount NULL) are never completed this way.
func (r *FundraiserRepository) CompleteIfCeilingReached(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fundraisers SET status = $2
		WHERE id = $1 AND status = $3 AND max_amount IS NOT NULL AND current_amount >= max_amount
	`, id, models.FundraiserStatusCompleted, models.FundraiserStatusActive)
	if err != nil {
		return false, fmt.Errorf("fundraiser repository: complete if ceiling reached: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkOpeningFeePaid activates a Draft fundraiser after its opening fee
// checkout completed. Idempotent: re-delivery is a no-op.
func (r *FundraiserRepository) MarkOpeningFeePaid(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fundraisers SET opening_fee_paid = TRUE, status = $2
		WHERE id = $1 AND status = $3
	`, id, models.FundraiserStatusActive, models.FundraiserStatusDraft)
	if err != nil {
		return false, fmt.Errorf("fundraiser repository: mark opening fee paid: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateStatus performs a guarded transition from one status to another.
func (r *FundraiserRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE fundraisers SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("fundraiser repository: update status: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
