package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository keeps a durable record of processed webhook event
// ids in the same store as the entities they guard, so deduplication
// survives restarts and horizontal scaling. It is still best-effort: the
// conditional-write guards on each transition remain the real safety net.
type WebhookEventRepository struct {
	db *sqlx.DB
}

func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// MarkProcessed records an event id; returns false when it was already
// recorded by an earlier delivery.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (id, event_type) VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("webhook event repository: mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
