package domain

import (
	"context"
	"time"
)

// WebhookEvent is a ledger row recording a processed provider event.
// It makes settlement processing exactly-once: replayed deliveries of
// the same provider event id are acknowledged without side effects.
type WebhookEvent struct {
	EventID     string
	Provider    Provider
	EventType   string
	ProcessedAt time.Time
}

// WebhookEventStore is the exactly-once ledger for settlement events.
type WebhookEventStore interface {
	// RecordWebhookEvent inserts the event id into the ledger. Returns
	// inserted=false when the event was already recorded, in which case
	// the caller must skip processing.
	RecordWebhookEvent(ctx context.Context, event WebhookEvent) (inserted bool, err error)

	// ReleaseWebhookEvent removes a previously recorded event id so a
	// redelivery can be processed. Called when processing fails after
	// the insert; releasing an absent row is not an error.
	ReleaseWebhookEvent(ctx context.Context, provider Provider, eventID string) error
}
