package payments

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/brave-intl/acquiring-go/libs/handlers"
)

// ErrorCode enumerates the failure codes surfaced to gateway clients.
type ErrorCode string

const (
	// ErrCodeInvalidToken is returned when the request signature does not verify.
	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	// ErrCodeTerminalBlocked is returned for unknown or deactivated merchants.
	ErrCodeTerminalBlocked ErrorCode = "TERMINAL_BLOCKED"
	// ErrCodeDuplicateOrder is returned when a live payment already holds the order id.
	ErrCodeDuplicateOrder ErrorCode = "DUPLICATE_ORDER"
	// ErrCodeInvalidState is returned when the operation does not apply to the current status.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	// ErrCodeInvalidTransition is returned when a requested edge is not in the lifecycle table.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	// ErrCodeInvalidCard is returned when submitted card data fails validation.
	ErrCodeInvalidCard ErrorCode = "INVALID_CARD"
	// ErrCodeExpired is returned when the payment deadline has passed.
	ErrCodeExpired ErrorCode = "EXPIRED"
	// ErrCodeBankRejected is returned when the bank refused the operation.
	ErrCodeBankRejected ErrorCode = "BANK_REJECTED"
	// ErrCodeBankUnavailable is returned when the bank could not be reached.
	ErrCodeBankUnavailable ErrorCode = "BANK_UNAVAILABLE"
	// ErrCodeConcurrentModification is returned when an optimistic write lost its race.
	ErrCodeConcurrentModification ErrorCode = "CONCURRENT_MODIFICATION"
	// ErrCodeInternal is returned for invariant violations and unexpected failures.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// HTTPStatus is the transport status the code maps onto.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidToken, ErrCodeTerminalBlocked:
		return http.StatusUnauthorized
	case ErrCodeDuplicateOrder, ErrCodeInvalidState, ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeInvalidCard, ErrCodeExpired:
		return http.StatusBadRequest
	case ErrCodeBankRejected:
		return http.StatusPaymentRequired
	case ErrCodeBankUnavailable, ErrCodeConcurrentModification:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error is a typed gateway failure. Lower layers return these untranslated;
// the service is the only layer that maps them onto transport responses.
// Messages never carry secrets or expected signatures.
type Error struct {
	Code    ErrorCode
	Message string
	Data    interface{}
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError builds a gateway error from a code and a human message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError attaches a gateway code to an underlying failure.
func WrapError(cause error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithData attaches response data carried alongside the error body.
func (e *Error) WithData(data interface{}) *Error {
	e.Data = data
	return e
}

// CodeOf extracts the gateway code from an error chain, INTERNAL otherwise.
func CodeOf(err error) ErrorCode {
	var gatewayError *Error
	if errors.As(err, &gatewayError) {
		return gatewayError.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether the error chain carries the given gateway code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// appError renders a gateway failure as a JSON transport response.
func appError(err error) *handlers.AppError {
	var gatewayError *Error
	if errors.As(err, &gatewayError) {
		return &handlers.AppError{
			Cause:     gatewayError.cause,
			Message:   gatewayError.Message,
			ErrorCode: string(gatewayError.Code),
			Code:      gatewayError.Code.HTTPStatus(),
			Data:      gatewayError.Data,
		}
	}
	return &handlers.AppError{
		Cause:     err,
		Message:   "unexpected failure",
		ErrorCode: string(ErrCodeInternal),
		Code:      http.StatusInternalServerError,
	}
}
