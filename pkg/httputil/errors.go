// Package httputil provides HTTP handler utilities for consistent
// error responses and JSON encoding across the authorization layer.
package httputil

import "net/http"

// ErrorCode is the machine-readable error code carried in every
// authorization-layer error response.
type ErrorCode string

const (
	CodeMissingAuthToken        ErrorCode = "MISSING_AUTH_TOKEN"
	CodeAuthenticationFailed    ErrorCode = "AUTHENTICATION_FAILED"
	CodeMissingTenantID         ErrorCode = "MISSING_TENANT_ID"
	CodeInvalidTenantID         ErrorCode = "INVALID_TENANT_ID"
	CodeUserNotFound            ErrorCode = "USER_NOT_FOUND"
	CodeTenantAccessDenied      ErrorCode = "TENANT_ACCESS_DENIED"
	CodeTenantInactive          ErrorCode = "TENANT_INACTIVE"
	CodeInsufficientPermissions ErrorCode = "INSUFFICIENT_PERMISSIONS"
	CodeResourceAccessDenied    ErrorCode = "RESOURCE_ACCESS_DENIED"
	CodeCrossTenantAccessDenied ErrorCode = "CROSS_TENANT_ACCESS_DENIED"
	CodeQuotaExceeded           ErrorCode = "QUOTA_EXCEEDED"
	CodeQuotaCheckFailed        ErrorCode = "QUOTA_CHECK_FAILED"
	CodeInternalError           ErrorCode = "INTERNAL_ERROR"
)

// StatusFor maps an error code to its HTTP status class.
func StatusFor(code ErrorCode) int {
	switch code {
	case CodeMissingAuthToken, CodeAuthenticationFailed, CodeUserNotFound:
		return http.StatusUnauthorized
	case CodeMissingTenantID, CodeInvalidTenantID:
		return http.StatusBadRequest
	case CodeTenantAccessDenied, CodeTenantInactive,
		CodeInsufficientPermissions, CodeResourceAccessDenied,
		CodeCrossTenantAccessDenied:
		return http.StatusForbidden
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
