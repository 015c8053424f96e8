package dto

import (
	"net/http"
	"strings"
)

// API error codes. Domain errors carry the same names without the ERR_
// prefix, so a new domain code needs only a status entry below.
const (
	ErrCodeInternal   = "ERR_INTERNAL"
	ErrCodeValidation = "ERR_VALIDATION"

	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput    = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"

	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"

	// Stock and recipe rules
	ErrCodeDerivedStock       = "ERR_DERIVED_STOCK"
	ErrCodeNestedBundle       = "ERR_NESTED_BUNDLE"
	ErrCodeDuplicateComponent = "ERR_DUPLICATE_COMPONENT"

	// Listing lifecycle
	ErrCodeSubmitInFlight  = "ERR_SUBMIT_IN_FLIGHT"
	ErrCodeListingArchived = "ERR_LISTING_ARCHIVED"

	// Marketplace
	ErrCodeUpstreamUnavailable  = "ERR_UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRejected     = "ERR_UPSTREAM_REJECTED"
	ErrCodeAccountNotConfigured = "ERR_ACCOUNT_NOT_CONFIGURED"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
)

var statusByCode = map[string]int{
	ErrCodeInternal:             http.StatusInternalServerError,
	ErrCodeValidation:           http.StatusBadRequest,
	ErrCodeBadRequest:           http.StatusBadRequest,
	ErrCodeInvalidInput:         http.StatusBadRequest,
	ErrCodeInvalidJSON:          http.StatusBadRequest,
	ErrCodeRequestTooLarge:      http.StatusRequestEntityTooLarge,
	ErrCodeNotFound:             http.StatusNotFound,
	ErrCodeAlreadyExists:        http.StatusConflict,
	ErrCodeConcurrencyConflict:  http.StatusConflict,
	ErrCodeSubmitInFlight:       http.StatusConflict,
	ErrCodeInvalidState:         http.StatusUnprocessableEntity,
	ErrCodeDerivedStock:         http.StatusUnprocessableEntity,
	ErrCodeNestedBundle:         http.StatusUnprocessableEntity,
	ErrCodeDuplicateComponent:   http.StatusUnprocessableEntity,
	ErrCodeListingArchived:      http.StatusUnprocessableEntity,
	ErrCodeAccountNotConfigured: http.StatusUnprocessableEntity,
	ErrCodeUpstreamUnavailable:  http.StatusServiceUnavailable,
	ErrCodeUpstreamRejected:     http.StatusBadGateway,
	ErrCodeUnauthorized:         http.StatusUnauthorized,
	ErrCodeRateLimited:          http.StatusTooManyRequests,
}

// GetHTTPStatus returns the status for an API code, 500 when unknown.
func GetHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NormalizeErrorCode turns a domain code such as NOT_FOUND into its API
// form. Codes the API does not know are passed through unchanged.
func NormalizeErrorCode(code string) string {
	if strings.HasPrefix(code, "ERR_") {
		return code
	}
	if _, ok := statusByCode["ERR_"+code]; ok {
		return "ERR_" + code
	}
	return code
}
