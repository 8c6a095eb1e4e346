// Package events publishes settlement notifications to NATS so other
// WatchHub services (entitlement cache, email, analytics) can react to
// payments without polling the database.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/watchhub/payments/internal/domain"
)

const (
	SubjectPaymentSettled        = "watchhub.payments.settled"
	SubjectSubscriptionActivated = "watchhub.subscriptions.activated"
)

// PaymentSettled is emitted when an order reaches completed status.
type PaymentSettled struct {
	OrderID     string          `json:"orderId"`
	Provider    domain.Provider `json:"provider"`
	AccountID   string          `json:"accountId,omitempty"`
	PlanType    domain.PlanType `json:"planType"`
	AmountCents int64           `json:"amountCents"`
	Currency    string          `json:"currency"`
	SettledAt   time.Time       `json:"settledAt"`
}

// SubscriptionActivated is emitted when an entitlement window opens or
// renews.
type SubscriptionActivated struct {
	SubscriptionID string          `json:"subscriptionId"`
	AccountID      string          `json:"accountId"`
	PlanType       domain.PlanType `json:"planType"`
	Provider       domain.Provider `json:"provider"`
	ExpiresAt      time.Time       `json:"expiresAt"`
}

// Publisher emits settlement events. Publishing is best effort: a
// broker outage must never fail a payment flow, so callers log and
// continue on error.
type Publisher interface {
	PublishPaymentSettled(event PaymentSettled) error
	PublishSubscriptionActivated(event SubscriptionActivated) error
	Close()
}

// NATSPublisher implements Publisher on a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

var _ Publisher = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the broker and returns a publisher.
func NewNATSPublisher(url string, logger *slog.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("watchhub-payments"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	return &NATSPublisher{
		conn:   conn,
		logger: logger.With(slog.String("component", "events")),
	}, nil
}

func (p *NATSPublisher) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", subject, err)
	}
	return nil
}

// PublishPaymentSettled emits a payment settled event.
func (p *NATSPublisher) PublishPaymentSettled(event PaymentSettled) error {
	return p.publish(SubjectPaymentSettled, event)
}

// PublishSubscriptionActivated emits a subscription activated event.
func (p *NATSPublisher) PublishSubscriptionActivated(event SubscriptionActivated) error {
	return p.publish(SubjectSubscriptionActivated, event)
}

// Close drains the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("failed to drain nats connection", slog.String("error", err.Error()))
	}
}

// NoopPublisher discards all events. Used when no broker is configured
// and in tests.
type NoopPublisher struct{}

var _ Publisher = (*NoopPublisher)(nil)

func (NoopPublisher) PublishPaymentSettled(PaymentSettled) error               { return nil }
func (NoopPublisher) PublishSubscriptionActivated(SubscriptionActivated) error { return nil }
func (NoopPublisher) Close()                                                   {}
