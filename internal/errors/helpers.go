package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error with field context
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewInputError reports a malformed request body or parameter
func NewInputError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeInvalidInput, message).
		WithUserMessage(message)
}

// NewMissingConfigError reports credentials or settings that are not available
func NewMissingConfigError(key, userMessage string) *AppError {
	return New(ErrCodeMissingConfig, fmt.Sprintf("%s is not configured", key)).
		WithContext("config_key", key).
		WithUserMessage(userMessage)
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewAPIError creates an error for a failed provider call. The provider's own
// message, when known, becomes the user message.
func NewAPIError(endpoint string, statusCode int, providerMessage string, err error) *AppError {
	message := fmt.Sprintf("provider API call failed with status %d", statusCode)
	if err == nil && providerMessage != "" {
		err = fmt.Errorf("%s", providerMessage)
	}

	appErr := Wrap(err, ErrCodeProviderAPI, message).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	appErr.Retryable = statusCode >= 500 || statusCode == 429 || statusCode == 408
	if providerMessage != "" {
		appErr.UserMessage = providerMessage
	} else {
		appErr.UserMessage = fmt.Sprintf("WhatsApp API error (status %d)", statusCode)
	}
	return appErr
}

// NewNetworkError wraps a transport failure talking to the provider
func NewNetworkError(endpoint string, err error) *AppError {
	return WrapRetryable(err, ErrCodeNetwork, "provider request failed").
		WithContext("endpoint", endpoint).
		WithUserMessage("Could not reach the WhatsApp API")
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	appErr := New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
	appErr.Retryable = true
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewForbiddenError creates an authorization error
func NewForbiddenError(reason string) *AppError {
	return New(ErrCodeAuthorization, "access denied").
		WithContext("reason", reason).
		WithUserMessage("Access denied")
}

// NewSignatureError reports a webhook signature problem. The reason never
// includes secret material.
func NewSignatureError(reason string) *AppError {
	return New(ErrCodeSignature, reason).
		WithUserMessage("Invalid signature")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewMediaError creates a media processing error
func NewMediaError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeMediaDownload, fmt.Sprintf("media %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Media processing failed")
}

// HTTPStatusCode maps error codes to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization, ErrCodeSignature:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeProviderAPI, ErrCodeNetwork, ErrCodeMediaDownload:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed API requests
type HTTPErrorResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	Code      ErrorCode `json:"code,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to the standard error body
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	return HTTPErrorResponse{
		Success:   false,
		Error:     GetUserMessage(err),
		Code:      GetCode(err),
		RequestID: requestID,
	}
}
