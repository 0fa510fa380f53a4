package service

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "wabadash/internal/errors"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
)

func TestProviderError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  apperrors.ErrorCode
		retryable bool
	}{
		{
			name:     "client error",
			err:      &whatsapp.APIError{StatusCode: 400, Body: &types.APIErrorBody{Message: "bad"}},
			wantCode: apperrors.ErrCodeProviderAPI,
		},
		{
			name:      "server error is retryable",
			err:       &whatsapp.APIError{StatusCode: 503, RawBody: "unavailable"},
			wantCode:  apperrors.ErrCodeProviderAPI,
			retryable: true,
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			wantCode: apperrors.ErrCodeTimeout,
		},
		{
			name:     "missing token",
			err:      whatsapp.ErrMissingAccessToken,
			wantCode: apperrors.ErrCodeMissingConfig,
		},
		{
			name:     "missing phone number id",
			err:      whatsapp.ErrMissingPhoneNumberID,
			wantCode: apperrors.ErrCodeMissingConfig,
		},
		{
			name:     "transport failure",
			err:      errors.New("connection refused"),
			wantCode: apperrors.ErrCodeNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ProviderError("/v23.0/222/messages", 5*time.Second, tt.err)
			assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
			if tt.retryable {
				assert.True(t, apperrors.IsRetryable(err))
			}
		})
	}

	assert.NoError(t, ProviderError("x", time.Second, nil))

	existing := apperrors.NewValidationError("to", "bad")
	assert.Same(t, existing, ProviderError("x", time.Second, existing))
}

func TestProviderErrorBody(t *testing.T) {
	body := providerErrorBody(&whatsapp.APIError{StatusCode: 400, Body: &types.APIErrorBody{Message: "bad", Code: 100}})
	assert.Equal(t, types.ErrorResponse{Error: &types.APIErrorBody{Message: "bad", Code: 100}}, body)

	body = providerErrorBody(errors.New("connection refused"))
	assert.Equal(t, map[string]any{"error": map[string]string{"message": "connection refused"}}, body)

	assert.Equal(t, 0, providerStatus(errors.New("x")))
	assert.Equal(t, 429, providerStatus(&whatsapp.APIError{StatusCode: 429}))
}
