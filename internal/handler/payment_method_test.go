package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchhub/payments/internal/domain"
)

type fakePaymentMethodService struct {
	methods map[uuid.UUID][]domain.PaymentMethod
	saveErr error
}

func newFakePaymentMethodService() *fakePaymentMethodService {
	return &fakePaymentMethodService{methods: make(map[uuid.UUID][]domain.PaymentMethod)}
}

func (f *fakePaymentMethodService) SavePaymentMethod(ctx context.Context, params domain.UpsertPaymentMethodParams) (*domain.PaymentMethod, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	method := domain.PaymentMethod{
		ID:         uuid.New(),
		AccountID:  params.AccountID,
		Provider:   params.Provider,
		ExternalID: params.ExternalID,
		Brand:      params.Brand,
		Last4:      params.Last4,
		Email:      params.Email,
		IsDefault:  len(f.methods[params.AccountID]) == 0,
		Active:     true,
		CreatedAt:  time.Now(),
	}
	f.methods[params.AccountID] = append(f.methods[params.AccountID], method)
	return &method, nil
}

func (f *fakePaymentMethodService) ListPaymentMethods(ctx context.Context, accountID uuid.UUID) ([]domain.PaymentMethod, error) {
	return f.methods[accountID], nil
}

func (f *fakePaymentMethodService) RemovePaymentMethod(ctx context.Context, accountID, methodID uuid.UUID) error {
	for i, m := range f.methods[accountID] {
		if m.ID == methodID {
			f.methods[accountID] = append(f.methods[accountID][:i], f.methods[accountID][i+1:]...)
			return nil
		}
	}
	return domain.NotFound("payment_method.remove", "payment method", methodID.String())
}

func TestPaymentMethodSaveAndList(t *testing.T) {
	svc := newFakePaymentMethodService()
	h := NewPaymentMethodHandler(svc, testLogger())
	accountID := uuid.New()

	req := authenticated(jsonRequest(t, http.MethodPost, "/api/payment-methods", map[string]string{
		"provider":   "stripe",
		"externalId": "pm_test_visa",
		"brand":      "visa",
		"last4":      "4242",
	}), accountID)
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		ID        string `json:"id"`
		Provider  string `json:"provider"`
		IsDefault bool   `json:"isDefault"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	assert.Equal(t, "stripe", created.Provider)
	assert.True(t, created.IsDefault, "first saved method should be default")

	listReq := authenticated(httptest.NewRequest(http.MethodGet, "/api/payment-methods", nil), accountID)
	listRec := httptest.NewRecorder()
	h.List(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)

	var listed struct {
		PaymentMethods []struct {
			Last4 string `json:"last4"`
		} `json:"paymentMethods"`
	}
	require.NoError(t, json.NewDecoder(listRec.Body).Decode(&listed))
	require.Len(t, listed.PaymentMethods, 1)
	assert.Equal(t, "4242", listed.PaymentMethods[0].Last4)
}

func TestPaymentMethodSave_Unauthenticated(t *testing.T) {
	h := NewPaymentMethodHandler(newFakePaymentMethodService(), testLogger())

	req := jsonRequest(t, http.MethodPost, "/api/payment-methods", map[string]string{
		"provider":   "stripe",
		"externalId": "pm_test_visa",
	})
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentMethodSave_Validation(t *testing.T) {
	h := NewPaymentMethodHandler(newFakePaymentMethodService(), testLogger())

	req := authenticated(jsonRequest(t, http.MethodPost, "/api/payment-methods", map[string]string{
		"provider":   "applepay",
		"externalId": "tok_1",
	}), uuid.New())
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentMethodSave_Duplicate(t *testing.T) {
	svc := newFakePaymentMethodService()
	svc.saveErr = domain.Conflict("payment_method.save", "payment method already saved")
	h := NewPaymentMethodHandler(svc, testLogger())

	req := authenticated(jsonRequest(t, http.MethodPost, "/api/payment-methods", map[string]string{
		"provider":   "paypal",
		"externalId": "payer-123",
		"email":      "viewer@example.com",
	}), uuid.New())
	rec := httptest.NewRecorder()
	h.Save(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentMethodRemove(t *testing.T) {
	svc := newFakePaymentMethodService()
	h := NewPaymentMethodHandler(svc, testLogger())
	accountID := uuid.New()

	saved, err := svc.SavePaymentMethod(context.Background(), domain.UpsertPaymentMethodParams{
		AccountID:  accountID,
		Provider:   domain.ProviderStripe,
		ExternalID: "pm_test_visa",
	})
	require.NoError(t, err)

	req := authenticated(httptest.NewRequest(http.MethodDelete, "/api/payment-methods/"+saved.ID.String(), nil), accountID)
	req.SetPathValue("id", saved.ID.String())
	rec := httptest.NewRecorder()
	h.Remove(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, svc.methods[accountID])
}

func TestPaymentMethodRemove_BadID(t *testing.T) {
	h := NewPaymentMethodHandler(newFakePaymentMethodService(), testLogger())

	req := authenticated(httptest.NewRequest(http.MethodDelete, "/api/payment-methods/not-a-uuid", nil), uuid.New())
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Remove(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
