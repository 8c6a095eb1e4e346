package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/watchhub/payments/internal/domain"
)

const (
	paypalSandboxAPIBase = "https://api-m.sandbox.paypal.com"
	paypalLiveAPIBase    = "https://api-m.paypal.com"

	// Renew the cached access token a minute before PayPal expires it
	// so in-flight requests never race the expiry.
	paypalTokenRenewWindow = 60 * time.Second
)

// PayPalConfig contains configuration for the PayPal provider.
type PayPalConfig struct {
	ClientID string
	Secret   string

	// Live selects the production API host. Defaults to sandbox.
	Live bool

	// APIBase overrides the API host, used in tests.
	APIBase string
}

// Validate checks that required configuration is present.
func (c *PayPalConfig) Validate() error {
	if c.ClientID == "" {
		return errors.New("paypal: client id is required")
	}
	if c.Secret == "" {
		return errors.New("paypal: secret is required")
	}
	return nil
}

func (c *PayPalConfig) apiBase() string {
	if c.APIBase != "" {
		return c.APIBase
	}
	if c.Live {
		return paypalLiveAPIBase
	}
	return paypalSandboxAPIBase
}

// PayPalProvider implements Provider against the PayPal Orders v2 REST
// API. OAuth2 access tokens are cached process-wide behind a mutex and
// renewed shortly before expiry.
type PayPalProvider struct {
	config PayPalConfig
	client *retryablehttp.Client
	logger *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ Provider = (*PayPalProvider)(nil)

// NewPayPalProvider creates a new PayPal billing provider.
func NewPayPalProvider(config PayPalConfig, logger *slog.Logger) (*PayPalProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = 10 * time.Second

	return &PayPalProvider{
		config: config,
		client: client,
		logger: logger.With(slog.String("component", "paypal")),
	}, nil
}

// Name identifies the provider.
func (p *PayPalProvider) Name() domain.Provider {
	return domain.ProviderPayPal
}

// CreateCustomer is not supported: PayPal identifies the payer at
// capture time, there is no customer object to create up front.
func (p *PayPalProvider) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	return nil, ErrNotSupported
}

// GetCustomer is not supported, see CreateCustomer.
func (p *PayPalProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return nil, ErrNotSupported
}

// GetSubscription is not supported: the PayPal flow in this service is
// one-shot order capture, renewal is driven by our own billing period.
func (p *PayPalProvider) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	return nil, ErrNotSupported
}

// VerifyWebhookSignature is not supported: settlement is confirmed
// synchronously at capture rather than via webhook.
func (p *PayPalProvider) VerifyWebhookSignature(payload []byte, signature string) error {
	return ErrNotSupported
}

// accessTokenLocked returns a valid cached access token, fetching a
// fresh one from the oauth2 endpoint when the cache is empty or close
// to expiry.
func (p *PayPalProvider) getAccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry.Add(-paypalTokenRenewWindow)) {
		return p.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost,
		p.config.apiBase()+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: build token request: %w", err)
	}
	req.SetBasicAuth(p.config.ClientID, p.config.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: paypal token: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("paypal: read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &ProviderError{
			Provider:   "paypal",
			Message:    fmt.Sprintf("token request failed: %s", strings.TrimSpace(string(body))),
			HTTPStatus: resp.StatusCode,
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", fmt.Errorf("paypal: decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("paypal: empty access token in response")
	}

	p.accessToken = token.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	p.logger.Debug("refreshed paypal access token",
		slog.Int("expires_in", token.ExpiresIn))

	return p.accessToken, nil
}

// doJSON issues an authenticated JSON request and returns the raw
// response body along with the status code.
func (p *PayPalProvider) doJSON(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	token, err := p.getAccessToken(ctx)
	if err != nil {
		return 0, nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("paypal: marshal request: %w", err)
		}
		body = strings.NewReader(string(raw))
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, p.config.apiBase()+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: paypal %s %s: %v", ErrProviderUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal: read response: %w", err)
	}

	return resp.StatusCode, raw, nil
}

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
	Payer struct {
		PayerID string `json:"payer_id"`
		Email   string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Amount      struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
				Amount struct {
					CurrencyCode string `json:"currency_code"`
					Value        string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalErrorResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// CreateCheckout creates a PayPal order with intent CAPTURE and a
// single purchase unit priced from the plan selection. The returned
// Checkout URL is the payer approval link.
func (p *PayPalProvider) CreateCheckout(ctx context.Context, params CreateCheckoutParams) (*Checkout, error) {
	value := fmt.Sprintf("%d.%02d", params.UnitAmountCents/100, params.UnitAmountCents%100)

	order := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{
			{
				"reference_id": params.PlanID,
				"description":  params.PlanName,
				"custom_id":    params.AccountID,
				"amount": map[string]any{
					"currency_code": strings.ToUpper(params.Currency),
					"value":         value,
				},
			},
		},
		"application_context": map[string]any{
			"return_url": params.SuccessURL,
			"cancel_url": params.CancelURL,
		},
	}

	status, raw, err := p.doJSON(ctx, http.MethodPost, "/v2/checkout/orders", order)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, paypalAPIError(status, raw)
	}

	var resp paypalOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("paypal: decode order response: %w", err)
	}

	approvalURL := ""
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if resp.ID == "" || approvalURL == "" {
		return nil, &ProviderError{
			Provider: "paypal",
			Message:  "order response missing id or approval link",
		}
	}

	return &Checkout{
		ID:  resp.ID,
		URL: approvalURL,
		Raw: json.RawMessage(raw),
	}, nil
}

// CaptureOrder captures an approved PayPal order. A capture that fails
// because the order was already captured is reported as a
// non-completed result rather than an error so the caller can treat
// the retry as settled elsewhere.
func (p *PayPalProvider) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	status, raw, err := p.doJSON(ctx, http.MethodPost,
		"/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", struct{}{})
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnprocessableEntity {
		var apiErr paypalErrorResponse
		if json.Unmarshal(raw, &apiErr) == nil {
			for _, d := range apiErr.Details {
				if d.Issue == "ORDER_ALREADY_CAPTURED" {
					p.logger.Warn("capture retried on already-captured order",
						slog.String("order_id", orderID))
					return &CaptureResult{
						OrderID: orderID,
						Status:  "ALREADY_CAPTURED",
						Raw:     json.RawMessage(raw),
					}, nil
				}
			}
		}
	}

	if status != http.StatusCreated && status != http.StatusOK {
		return nil, paypalAPIError(status, raw)
	}

	var resp paypalOrderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("paypal: decode capture response: %w", err)
	}

	result := &CaptureResult{
		OrderID:    resp.ID,
		Status:     resp.Status,
		PayerID:    resp.Payer.PayerID,
		PayerEmail: resp.Payer.Email,
		Raw:        json.RawMessage(raw),
	}

	if len(resp.PurchaseUnits) > 0 {
		unit := resp.PurchaseUnits[0]
		currency := unit.Amount.CurrencyCode
		value := unit.Amount.Value
		if len(unit.Payments.Captures) > 0 {
			currency = unit.Payments.Captures[0].Amount.CurrencyCode
			value = unit.Payments.Captures[0].Amount.Value
		}
		result.Currency = strings.ToLower(currency)
		if cents, err := paypalValueToCents(value); err == nil {
			result.AmountCents = cents
		}
	}

	return result, nil
}

// paypalValueToCents converts a PayPal decimal amount string such as
// "5.99" to integer cents. Settlement amounts are never negative, so a
// signed value is rejected rather than parsed into nonsense cents.
func paypalValueToCents(value string) (int64, error) {
	if strings.HasPrefix(value, "-") || strings.HasPrefix(value, "+") {
		return 0, fmt.Errorf("paypal: signed amount %q", value)
	}
	whole, frac, _ := strings.Cut(value, ".")
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("paypal: bad amount %q: %w", value, err)
	}
	if frac == "" {
		return units * 100, nil
	}
	if len(frac) > 2 {
		frac = frac[:2]
	}
	for len(frac) < 2 {
		frac += "0"
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("paypal: bad amount %q: %w", value, err)
	}
	return units*100 + cents, nil
}

func paypalAPIError(status int, raw []byte) error {
	if status >= 500 {
		return fmt.Errorf("%w: paypal returned %d", ErrProviderUnavailable, status)
	}

	var apiErr paypalErrorResponse
	message := strings.TrimSpace(string(raw))
	code := ""
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Name != "" {
		code = apiErr.Name
		message = apiErr.Message
		if len(apiErr.Details) > 0 {
			message = fmt.Sprintf("%s: %s", apiErr.Message, apiErr.Details[0].Issue)
		}
	}

	return &ProviderError{
		Provider:   "paypal",
		Message:    message,
		Code:       code,
		HTTPStatus: status,
	}
}
