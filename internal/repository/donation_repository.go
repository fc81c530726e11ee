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

var ErrDonationNotFound = apperror.ErrDonationNotFound

type DonationRepository struct {
	db *sqlx.DB
}

func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, d *models.Donation) error {
	query := `
		INSERT INTO donations (fundraiser_id, amount, tip_amount, currency, donor_name, donor_email,
			donor_message, donor_address, is_anonymous, wants_receipt, is_direct_charge, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at
	`
	row := r.db.QueryRowxContext(ctx, query,
		d.FundraiserID, d.Amount, d.TipAmount, d.Currency, d.DonorName, d.DonorEmail,
		d.DonorMessage, d.DonorAddress, d.IsAnonymous, d.WantsReceipt, d.IsDirectCharge, d.Status)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("donation repository: create: %w", err)
	}
	return nil
}

func (r *DonationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Donation, error) {
	var d models.Donation
	err := r.db.GetContext(ctx, &d, `SELECT * FROM donations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Donation, error) {
	var d models.Donation
	err := r.db.GetContext(ctx, &d, `SELECT * FROM donations WHERE stripe_payment_intent_id = $1`, paymentIntentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDonationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SetStripeSession records the checkout session id after the processor call.
func (r *DonationRepository) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE donations SET stripe_session_id = $2 WHERE id = $1`, id, sessionID)
	if err != nil {
		return fmt.Errorf("donation repository: set stripe session: %w", err)
	}
	return nil
}

// MarkCompleted is the PENDING→COMPLETED conditional write. The status guard
// is the authoritative idempotency barrier: a duplicate completion event
// racing the in-memory cache affects zero rows and is reported as done=false.
func (r *DonationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, sessionID, paymentIntentID *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE donations
		SET status = $2,
			completed_at = NOW(),
			stripe_session_id = COALESCE($3, stripe_session_id),
			stripe_payment_intent_id = COALESCE($4, stripe_payment_intent_id)
		WHERE id = $1 AND status = $5
	`, id, models.DonationStatusCompleted, sessionID, paymentIntentID, models.DonationStatusPending)
	if err != nil {
		return false, fmt.Errorf("donation repository: mark completed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed transitions PENDING→FAILED.
func (r *DonationRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, models.DonationStatusPending, models.DonationStatusFailed)
}

// MarkRefunded transitions COMPLETED→REFUNDED.
func (r *DonationRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, models.DonationStatusCompleted, models.DonationStatusRefunded)
}

// MarkDisputed transitions COMPLETED→DISPUTED.
func (r *DonationRepository) MarkDisputed(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.transition(ctx, id, models.DonationStatusCompleted, models.DonationStatusDisputed)
}

func (r *DonationRepository) transition(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE donations SET status = $3 WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return false, fmt.Errorf("donation repository: transition %s->%s: %w", from, to, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *DonationRepository) ListCompleted(ctx context.Context, fundraiserID uuid.UUID, limit, offset int) ([]models.Donation, error) {
	var out []models.Donation
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM donations
		WHERE fundraiser_id = $1 AND status = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, fundraiserID, models.DonationStatusCompleted, limit, offset)
	return out, err
}

func (r *DonationRepository) CountCompleted(ctx context.Context, fundraiserID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM donations WHERE fundraiser_id = $1 AND status = $2
	`, fundraiserID, models.DonationStatusCompleted)
	return count, err
}

// OldestCompleted returns the earliest completed donation; it anchors the
// plan withdrawal delay. completed_at can be null for rows completed before
// the column existed, hence the COALESCE.
func (r *DonationRepository) OldestCompleted(ctx context.Context, fundraiserID uuid.UUID) (*models.Donation, error) {
	var d models.Donation
	err := r.db.GetContext(ctx, &d, `
		SELECT * FROM donations
		WHERE fundraiser_id = $1 AND status = $2
		ORDER BY COALESCE(completed_at, created_at) ASC LIMIT 1
	`, fundraiserID, models.DonationStatusCompleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListPendingWithSession returns donations awaiting a completion event;
// input of the reconciliation sweep.
func (r *DonationRepository) ListPendingWithSession(ctx context.Context) ([]models.Donation, error) {
	var out []models.Donation
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM donations
		WHERE status = $1 AND stripe_session_id IS NOT NULL
		ORDER BY created_at ASC
	`, models.DonationStatusPending)
	return out, err
}
