package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/watchhub/payments/internal/domain"
)

// maxRequestBody limits JSON request bodies. Payment requests are tiny,
// anything near this size is abuse.
const maxRequestBody = 64 * 1024

var validate = validator.New()

// DecodeJSON reads and validates a JSON request body into dst.
// dst must be a pointer to a struct with `validate` tags.
// Returns a domain validation error suitable for ValidationErrorResponse.
func DecodeJSON(w http.ResponseWriter, r *http.Request, op string, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return domain.Invalid(op, "request body too large")
		}
		return domain.Invalid(op, "invalid JSON in request body")
	}

	if err := validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return domain.Internal(err, op, "request validation misconfigured")
		}

		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			var ve error
			for _, fe := range fieldErrs {
				field := jsonFieldName(fe)
				msg := validationMessage(fe)
				if ve == nil {
					ve = domain.NewValidationError(op, field, msg)
				} else {
					ve = domain.AddFieldError(ve, field, msg)
				}
			}
			return ve
		}
		return domain.Invalid(op, "invalid request")
	}

	return nil
}

// RespondJSON writes v as a JSON response with the given status.
func RespondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonFieldName(fe validator.FieldError) string {
	// StructNamespace is Type.Field; report the leaf field lowercased
	// to match the request payload convention.
	name := fe.Field()
	if name == "" {
		return "body"
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func validationMessage(fe validator.FieldError) string {
	field := jsonFieldName(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "uuid":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
