package dto

import (
	"net/http"
	"strings"
)

// Cross-cutting error codes used directly by handlers and middleware
const (
	ErrCodeInternal     = "INTERNAL_ERROR"
	ErrCodeBadRequest   = "BAD_REQUEST"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeRateLimited  = "RATE_LIMITED"
)

// errorCodeHTTPStatus maps domain error codes to HTTP status codes
var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	"ALREADY_EXISTS": http.StatusConflict,
	"EMAIL_TAKEN":    http.StatusConflict,

	// Tenant lifecycle
	"TENANT_CONFLICT":        http.StatusConflict,
	"TENANT_NOT_PROVISIONED": http.StatusServiceUnavailable,

	// Authentication
	"INVALID_CREDENTIALS": http.StatusUnauthorized,
	"TOKEN_EXPIRED":       http.StatusUnauthorized,
	"TOKEN_INVALID":       http.StatusUnauthorized,
	"USER_NOT_FOUND":      http.StatusNotFound,

	// Business rules
	"INVALID_STATE":             http.StatusUnprocessableEntity,
	"INVALID_STATUS_TRANSITION": http.StatusUnprocessableEntity,
	"INSUFFICIENT_STOCK":        http.StatusUnprocessableEntity,
	"EMPTY_ORDER":               http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status for a domain error code.
// Unmapped validation codes read as bad requests, everything else as
// internal errors.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "INVALID_") {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
