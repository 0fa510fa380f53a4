package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	apperrors "wabadash/internal/errors"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"
)

// ProviderError turns a whatsapp client error into an AppError so handlers
// can map it to a status code and user message
func ProviderError(endpoint string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}

	var apiErr *whatsapp.APIError
	switch {
	case errors.As(err, &apiErr):
		return apperrors.NewAPIError(endpoint, apiErr.StatusCode, apiErr.Message(), apiErr)
	case errors.Is(err, context.DeadlineExceeded):
		appErr := apperrors.NewTimeoutError(endpoint, timeout.String())
		appErr.Cause = err
		return appErr
	case errors.Is(err, whatsapp.ErrMissingAccessToken):
		return apperrors.NewMissingConfigError("access_token", "Access token not configured")
	case errors.Is(err, whatsapp.ErrMissingBusinessID):
		return apperrors.NewMissingConfigError("business_id", "Business account ID not configured")
	case errors.Is(err, whatsapp.ErrMissingPhoneNumberID):
		return apperrors.NewMissingConfigError("phone_number_id", "Phone number ID not configured")
	default:
		return apperrors.NewNetworkError(endpoint, err)
	}
}

// providerStatus returns the HTTP status carried by a provider error, or 0
func providerStatus(err error) int {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// providerMessage returns the provider's error message, or err's text when
// no response was received
func providerMessage(err error) string {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}

// providerErrorBody is the audit response body for a failed provider call
func providerErrorBody(err error) any {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) && apiErr.Body != nil {
		return types.ErrorResponse{Error: apiErr.Body}
	}
	return map[string]any{"error": map[string]string{"message": providerMessage(err)}}
}

// ProviderCallEvent is the audit event for one provider request. A failed
// call carries the provider's status and error envelope.
func ProviderCallEvent(endpoint, method string, request, response any, err error) Event {
	ev := Event{
		Endpoint:       endpoint,
		Method:         method,
		RequestBody:    request,
		ResponseBody:   response,
		ResponseStatus: http.StatusOK,
	}
	if err != nil {
		ev.ResponseBody = providerErrorBody(err)
		ev.ResponseStatus = providerStatus(err)
		ev.ErrorMessage = providerMessage(err)
	}
	return ev
}
