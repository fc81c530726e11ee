package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
)

var (
	ErrWithdrawalNotFound  = apperror.ErrWithdrawalNotFound
	ErrInsufficientBalance = errors.New("insufficient available balance")
)

type WithdrawalRepository struct {
	db *sqlx.DB
}

func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// CreateWithBalanceGuard creates a PENDING withdrawal only if the requested
// amount fits within the available balance (completed donations minus
// withdrawals still holding funds). The read-and-create runs in one
// transaction holding the fundraiser row lock, so two concurrent requests
// cannot both observe the same balance and both succeed.
func (r *WithdrawalRepository) CreateWithBalanceGuard(ctx context.Context, fundraiserID uuid.UUID, amount int64) (*models.Withdrawal, int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	// Serialize concurrent withdrawal requests on the fundraiser row.
	var lockedID uuid.UUID
	err = tx.GetContext(ctx, &lockedID, `SELECT id FROM fundraisers WHERE id = $1 FOR UPDATE`, fundraiserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrFundraiserNotFound
		}
		return nil, 0, err
	}

	var donated int64
	err = tx.GetContext(ctx, &donated, `
		SELECT COALESCE(SUM(amount), 0) FROM donations
		WHERE fundraiser_id = $1 AND status = $2
	`, fundraiserID, models.DonationStatusCompleted)
	if err != nil {
		return nil, 0, fmt.Errorf("withdrawal repository: sum donations: %w", err)
	}

	var held int64
	err = tx.GetContext(ctx, &held, `
		SELECT COALESCE(SUM(amount), 0) FROM withdrawals
		WHERE fundraiser_id = $1 AND status IN ($2, $3, $4)
	`, fundraiserID, models.WithdrawalStatusPending, models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted)
	if err != nil {
		return nil, 0, fmt.Errorf("withdrawal repository: sum withdrawals: %w", err)
	}

	available := donated - held
	if amount > available {
		return nil, available, ErrInsufficientBalance
	}

	var w models.Withdrawal
	err = tx.GetContext(ctx, &w, `
		INSERT INTO withdrawals (fundraiser_id, amount, status)
		VALUES ($1, $2, $3)
		RETURNING *
	`, fundraiserID, amount, models.WithdrawalStatusPending)
	if err != nil {
		return nil, 0, fmt.Errorf("withdrawal repository: create: %w", err)
	}

	return &w, available, tx.Commit()
}

// AvailableBalance computes the withdrawable amount outside a lock, for
// display only. Authorization always goes through CreateWithBalanceGuard.
func (r *WithdrawalRepository) AvailableBalance(ctx context.Context, fundraiserID uuid.UUID) (int64, error) {
	var available int64
	err := r.db.GetContext(ctx, &available, `
		SELECT COALESCE((SELECT SUM(amount) FROM donations WHERE fundraiser_id = $1 AND status = $2), 0)
		     - COALESCE((SELECT SUM(amount) FROM withdrawals WHERE fundraiser_id = $1 AND status IN ($3, $4, $5)), 0)
	`, fundraiserID, models.DonationStatusCompleted,
		models.WithdrawalStatusPending, models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted)
	return available, err
}

// MarkProcessing records the accepted transfer, PENDING→PROCESSING.
func (r *WithdrawalRepository) MarkProcessing(ctx context.Context, id uuid.UUID, transferID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, stripe_transfer_id = $3, processed_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.WithdrawalStatusProcessing, transferID, time.Now(), models.WithdrawalStatusPending)
	if err != nil {
		return fmt.Errorf("withdrawal repository: mark processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

// MarkFailed records a failed transfer submission, PENDING→FAILED. The
// failed row stops holding funds, releasing the balance immediately.
func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE withdrawals SET status = $2, failure_reason = $3, processed_at = $4
		WHERE id = $1 AND status = $5
	`, id, models.WithdrawalStatusFailed, reason, time.Now(), models.WithdrawalStatusPending)
	if err != nil {
		return fmt.Errorf("withdrawal repository: mark failed: %w", err)
	}
	return nil
}

// UpdateStatus is an unguarded transition used by settlement tooling
// (PROCESSING→COMPLETED once a transfer confirmation path exists).
func (r *WithdrawalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE withdrawals SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWithdrawalNotFound
	}
	return nil
}

func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := r.db.GetContext(ctx, &w, `SELECT * FROM withdrawals WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	return &w, err
}

// ListByOwner returns withdrawals across all fundraisers of a user.
func (r *WithdrawalRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Withdrawal, error) {
	var out []models.Withdrawal
	err := r.db.SelectContext(ctx, &out, `
		SELECT w.* FROM withdrawals w
		JOIN fundraisers f ON f.id = w.fundraiser_id
		WHERE f.owner_user_id = $1
		ORDER BY w.created_at DESC LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	return out, err
}
