package service

import (
	"github.com/watchhub/payments/internal/domain"
)

// Lookup errors - use domain.ENOTFOUND
var (
	ErrPlanNotFound          = domain.Errorf(domain.ENOTFOUND, "", "Plan not found")
	ErrOrderNotFound         = domain.Errorf(domain.ENOTFOUND, "", "Order not found")
	ErrAccountNotFound       = domain.Errorf(domain.ENOTFOUND, "", "Account not found")
	ErrSubscriptionNotFound  = domain.Errorf(domain.ENOTFOUND, "", "No active subscription")
	ErrPaymentMethodNotFound = domain.Errorf(domain.ENOTFOUND, "", "Payment method not found")
)

// Validation errors - use domain.EINVALID
var (
	ErrUnknownProvider = domain.Errorf(domain.EINVALID, "", "Unknown payment provider")
	ErrPlanInactive    = domain.Errorf(domain.EINVALID, "", "Plan is not available for purchase")
	ErrPriceMismatch   = domain.Errorf(domain.EINVALID, "", "Displayed price does not match the current plan price")
)

// Payment errors
var (
	ErrPaymentNotCompleted = domain.Errorf(domain.EPAYMENT, "", "Payment was not completed")
	ErrOrderAlreadySettled = domain.Errorf(domain.ECONFLICT, "", "Order already settled")
	ErrWrongOrderProvider  = domain.Errorf(domain.EINVALID, "", "Order belongs to a different payment provider")
)

// Ownership errors
var (
	ErrNotOrderOwner         = domain.Errorf(domain.EFORBIDDEN, "", "Order belongs to a different account")
	ErrNotPaymentMethodOwner = domain.Errorf(domain.EFORBIDDEN, "", "Payment method belongs to a different account")
)
