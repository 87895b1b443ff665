// Package ucperr defines the domain errors of the merchant server. Every
// error carries the protocol code and the HTTP status the boundary serialises
// it with; handlers surface them untouched.
package ucperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error with a protocol code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var ue *Error
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// NotFound reports an unknown checkout or order.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: "RESOURCE_NOT_FOUND", Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidRequest reports a missing or invalid field, an unknown product, an
// unsupported payment handler, or an unreadable fulfillment selection.
func InvalidRequest(format string, args ...any) *Error {
	return &Error{Code: "INVALID_REQUEST", Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// IdempotencyConflict reports a key reuse with different parameters.
func IdempotencyConflict(format string, args ...any) *Error {
	return &Error{Code: "IDEMPOTENCY_CONFLICT", Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// NotModifiable reports a mutation attempted on a terminal session.
func NotModifiable(format string, args ...any) *Error {
	return &Error{Code: "CHECKOUT_NOT_MODIFIABLE", Status: http.StatusConflict, Message: fmt.Sprintf(format, args...)}
}

// OutOfStock reports insufficient inventory. Pre-validation uses status 400;
// the reserve path of complete raises it with status 409.
func OutOfStock(status int, format string, args ...any) *Error {
	return &Error{Code: "OUT_OF_STOCK", Status: status, Message: fmt.Sprintf(format, args...)}
}

// PaymentFailed reports a declined charge attempt. The code distinguishes the
// failure mode (INSUFFICIENT_FUNDS, FRAUD_DETECTED, UNKNOWN_TOKEN).
func PaymentFailed(code string, status int, format string, args ...any) *Error {
	if code == "" {
		code = "PAYMENT_FAILED"
	}
	if status == 0 {
		status = http.StatusPaymentRequired
	}
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}
