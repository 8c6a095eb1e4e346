package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/watchhub/payments/internal/domain"
)

// WebhookEventStore implements domain.WebhookEventStore using
// PostgreSQL. The primary key on (provider, event_id) is the
// exactly-once guarantee: a replayed delivery conflicts and reports
// inserted=false.
type WebhookEventStore struct {
	pool *pgxpool.Pool
}

var _ domain.WebhookEventStore = (*WebhookEventStore)(nil)

// NewWebhookEventStore creates a new WebhookEventStore instance.
func NewWebhookEventStore(pool *pgxpool.Pool) *WebhookEventStore {
	return &WebhookEventStore{pool: pool}
}

// RecordWebhookEvent inserts the event into the ledger.
func (s *WebhookEventStore) RecordWebhookEvent(ctx context.Context, event domain.WebhookEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (provider, event_id, event_type)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		event.Provider, event.EventID, event.EventType)
	if err != nil {
		return false, fmt.Errorf("failed to record webhook event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ReleaseWebhookEvent deletes a recorded event so its redelivery can be
// processed.
func (s *WebhookEventStore) ReleaseWebhookEvent(ctx context.Context, provider domain.Provider, eventID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM webhook_events WHERE provider = $1 AND event_id = $2`,
		provider, eventID)
	if err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
