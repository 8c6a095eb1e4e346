package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Provider identifies an external payment platform.
type Provider string

const (
	ProviderStripe Provider = "stripe"
	ProviderPayPal Provider = "paypal"
)

// OrderStatus tracks the lifecycle of a payment attempt.
// Transitions: pending -> completed or pending -> failed, terminal
// either way.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
)

// ErrOrderFinalized is returned when a terminal order is asked to
// transition again. Callers use it to detect replayed settlements.
var ErrOrderFinalized = errors.New("order already reached a terminal status")

// Order is a single payment attempt tracked against a provider.
// The ID is provider-assigned (Stripe checkout session id or PayPal
// order id). The row is write-once after reaching a terminal status.
type Order struct {
	ID          string
	Provider    Provider
	AccountID   uuid.UUID // zero for guest checkout
	PlanID      string
	PlanName    string
	PlanType    PlanType
	AmountCents int64
	Currency    string
	Status      OrderStatus
	// ProviderPayload is the raw provider response, kept opaque for
	// audit and debugging.
	ProviderPayload json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderStore persists payment attempts.
type OrderStore interface {
	// CreateOrder records a new pending order.
	CreateOrder(ctx context.Context, order *Order) error

	// GetOrder retrieves an order by its provider-assigned ID.
	GetOrder(ctx context.Context, id string) (*Order, error)

	// MarkOrderCompleted transitions a pending order to completed,
	// storing the settlement payload. Returns ErrOrderFinalized if the
	// order already reached a terminal status.
	MarkOrderCompleted(ctx context.Context, id string, payload json.RawMessage) error

	// MarkOrderFailed transitions a pending order to failed.
	// Returns ErrOrderFinalized if the order already reached a terminal
	// status.
	MarkOrderFailed(ctx context.Context, id string, payload json.RawMessage) error
}
