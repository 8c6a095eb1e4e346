package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchhub/payments/internal/domain"
	"github.com/watchhub/payments/internal/middleware"
	"github.com/watchhub/payments/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCheckoutService records the last params and returns a canned result.
type fakeCheckoutService struct {
	lastParams service.CreateCheckoutParams
	result     *service.CheckoutResult
	err        error
}

func (f *fakeCheckoutService) CreateCheckout(ctx context.Context, params service.CreateCheckoutParams) (*service.CheckoutResult, error) {
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func jsonRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authenticated(req *http.Request, accountID uuid.UUID) *http.Request {
	identity := &middleware.Identity{AccountID: accountID, Email: "viewer@example.com", Role: "user"}
	return req.WithContext(context.WithValue(req.Context(), middleware.IdentityContextKey, identity))
}

func TestCreateStripeCheckout(t *testing.T) {
	svc := &fakeCheckoutService{
		result: &service.CheckoutResult{
			OrderID:     "cs_test_1",
			RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1",
			Provider:    domain.ProviderStripe,
		},
	}
	h := NewCheckoutHandler(svc, testLogger())

	accountID := uuid.New()
	req := authenticated(jsonRequest(t, http.MethodPost, "/api/stripe/checkout", map[string]string{
		"planId":   "plan-standard",
		"planName": "Standard",
		"planType": "standard",
		"price":    "7.99",
	}), accountID)
	rec := httptest.NewRecorder()

	h.CreateStripeCheckout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", resp.URL)

	assert.Equal(t, domain.ProviderStripe, svc.lastParams.Provider)
	assert.Equal(t, "plan-standard", svc.lastParams.PlanID)
	assert.Equal(t, accountID, svc.lastParams.AccountID)
	assert.Equal(t, "7.99", svc.lastParams.DisplayedPrice)
}

func TestCreateStripeCheckout_GuestAllowed(t *testing.T) {
	svc := &fakeCheckoutService{
		result: &service.CheckoutResult{OrderID: "cs_test_2", RedirectURL: "https://example.test/pay"},
	}
	h := NewCheckoutHandler(svc, testLogger())

	req := jsonRequest(t, http.MethodPost, "/api/stripe/checkout", map[string]string{
		"planId":   "plan-basic",
		"planName": "Basic",
		"planType": "basic",
		"price":    "5.99",
	})
	rec := httptest.NewRecorder()

	h.CreateStripeCheckout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uuid.Nil, svc.lastParams.AccountID)
}

func TestCreateStripeCheckout_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
	}{
		{
			name: "missing plan id",
			body: map[string]string{"planName": "Basic", "planType": "basic", "price": "5.99"},
		},
		{
			name: "unknown plan type",
			body: map[string]string{"planId": "plan-basic", "planName": "Basic", "planType": "gold", "price": "5.99"},
		},
		{
			name: "missing price",
			body: map[string]string{"planId": "plan-basic", "planName": "Basic", "planType": "basic"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeCheckoutService{}
			h := NewCheckoutHandler(svc, testLogger())

			req := jsonRequest(t, http.MethodPost, "/api/stripe/checkout", tt.body)
			rec := httptest.NewRecorder()

			h.CreateStripeCheckout(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp struct {
				Error struct {
					Code   string            `json:"code"`
					Fields map[string]string `json:"fields"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, domain.EINVALID, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Fields)
		})
	}
}

func TestCreateStripeCheckout_ProviderUnavailable(t *testing.T) {
	svc := &fakeCheckoutService{
		err: domain.Unavailable(nil, "checkout.create", "payment provider is unavailable"),
	}
	h := NewCheckoutHandler(svc, testLogger())

	req := jsonRequest(t, http.MethodPost, "/api/stripe/checkout", map[string]string{
		"planId":   "plan-basic",
		"planName": "Basic",
		"planType": "basic",
		"price":    "5.99",
	})
	rec := httptest.NewRecorder()

	h.CreateStripeCheckout(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCreatePayPalOrder(t *testing.T) {
	svc := &fakeCheckoutService{
		result: &service.CheckoutResult{
			OrderID:     "5O190127TN364715T",
			RedirectURL: "https://www.sandbox.paypal.com/checkoutnow?token=5O190127TN364715T",
			Provider:    domain.ProviderPayPal,
		},
	}
	h := NewCheckoutHandler(svc, testLogger())

	req := authenticated(jsonRequest(t, http.MethodPost, "/api/paypal/orders", map[string]string{
		"planId":   "plan-premium",
		"planName": "Premium",
		"price":    "9.99",
	}), uuid.New())
	rec := httptest.NewRecorder()

	h.CreatePayPalOrder(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		OrderID     string `json:"orderId"`
		ApprovalURL string `json:"approvalUrl"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "5O190127TN364715T", resp.OrderID)
	assert.Contains(t, resp.ApprovalURL, "checkoutnow")
	assert.Equal(t, domain.ProviderPayPal, svc.lastParams.Provider)
}

func TestCreatePayPalOrder_PlanNotFound(t *testing.T) {
	svc := &fakeCheckoutService{err: service.ErrPlanNotFound}
	h := NewCheckoutHandler(svc, testLogger())

	req := jsonRequest(t, http.MethodPost, "/api/paypal/orders", map[string]string{
		"planId":   "plan-extinct",
		"planName": "Extinct",
		"price":    "1.00",
	})
	rec := httptest.NewRecorder()

	h.CreatePayPalOrder(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
