package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/AmazingeventParis/Kooki/internal/models"
)

// ErrReceiptExists signals a donation that already has a receipt.
var ErrReceiptExists = errors.New("tax receipt already exists for donation")

type ReceiptRepository struct {
	db *sqlx.DB
}

func NewReceiptRepository(db *sqlx.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Mint atomically draws the next counter value for (organization, year) and
// creates the receipt in one transaction. The upsert-and-increment is a
// single statement, so concurrent completions never observe the same
// counter value; rolling back on a duplicate donation keeps the sequence
// gap-free.
func (r *ReceiptRepository) Mint(ctx context.Context, donationID, organizationID uuid.UUID, year int) (*models.TaxReceipt, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists bool
	err = tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM tax_receipts WHERE donation_id = $1)`, donationID)
	if err != nil {
		return nil, fmt.Errorf("receipt repository: check existing: %w", err)
	}
	if exists {
		return nil, ErrReceiptExists
	}

	var counter int64
	err = tx.GetContext(ctx, &counter, `
		INSERT INTO receipt_counters (organization_id, year, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (organization_id, year)
		DO UPDATE SET counter = receipt_counters.counter + 1
		RETURNING counter
	`, organizationID, year)
	if err != nil {
		return nil, fmt.Errorf("receipt repository: next counter: %w", err)
	}

	receiptNumber := fmt.Sprintf("CERFA-%d-%06d", year, counter)

	var receipt models.TaxReceipt
	err = tx.GetContext(ctx, &receipt, `
		INSERT INTO tax_receipts (donation_id, organization_id, receipt_number, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *
	`, donationID, organizationID, receiptNumber, models.TaxReceiptStatusPending)
	if err != nil {
		return nil, fmt.Errorf("receipt repository: create: %w", err)
	}

	return &receipt, tx.Commit()
}

// CancelByDonation cancels the receipt of a refunded donation, if any.
// Returns true when a receipt was actually cancelled.
func (r *ReceiptRepository) CancelByDonation(ctx context.Context, donationID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tax_receipts SET status = $2 WHERE donation_id = $1 AND status <> $2
	`, donationID, models.TaxReceiptStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("receipt repository: cancel by donation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("receipt repository: cancel by donation: %w", err)
	}
	return rows > 0, nil
}

func (r *ReceiptRepository) GetByDonation(ctx context.Context, donationID uuid.UUID) (*models.TaxReceipt, error) {
	var receipt models.TaxReceipt
	err := r.db.GetContext(ctx, &receipt, `SELECT * FROM tax_receipts WHERE donation_id = $1`, donationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

func (r *ReceiptRepository) ListByOrganization(ctx context.Context, organizationID uuid.UUID, limit, offset int) ([]models.TaxReceipt, error) {
	var out []models.TaxReceipt
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM tax_receipts WHERE organization_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, organizationID, limit, offset)
	return out, err
}
