package services

import (
	"errors"
	"net/http"
)

// Domain errors. Handlers translate these to HTTP status codes; the services
// themselves return them before any mutation is attempted, so a non-nil error
// always means zero side effects.
var (
	// Validation
	ErrInvalidAmount = errors.New("amount must be a positive value in cents")
	ErrInvalidToken  = errors.New("malformed payment token")

	// Not found
	ErrAccountNotFound = errors.New("account not found")
	ErrInvoiceNotFound = errors.New("invoice not found")

	// Conflict
	ErrInsufficientFunds   = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("payer and receiver are the same account")
	ErrInvoiceSettled      = errors.New("invoice is no longer pending")
	ErrDuplicateIdentifier = errors.New("identifier already taken")
	ErrTokenRedeemed       = errors.New("token already redeemed")

	// Auth
	ErrBadSignature  = errors.New("token signature mismatch")
	ErrTokenExpired  = errors.New("token has expired")
	ErrUnknownScheme = errors.New("unsupported token scheme")
)

// HTTPStatus maps a domain error to the status code the web layer should
// answer with. Anything unrecognized is treated as a persistence fault.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidToken):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvoiceSettled), errors.Is(err, ErrDuplicateIdentifier),
		errors.Is(err, ErrTokenRedeemed):
		return http.StatusConflict
	case errors.Is(err, ErrBadSignature), errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrUnknownScheme):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
