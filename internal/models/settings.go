package models

import (
	"time"
)

// APISettings holds the provider credentials stored for the account.
// Only one row is in effect at a time.
type APISettings struct {
	ID               string    `json:"id"`
	AccessToken      string    `json:"access_token" validate:"required"`
	APIVersion       string    `json:"api_version" validate:"omitempty,startswith=v"`
	BusinessID       string    `json:"business_id" validate:"omitempty,numeric"`
	PhoneNumberID    string    `json:"phone_number_id" validate:"omitempty,numeric"`
	WABAID           string    `json:"waba_id" validate:"omitempty,numeric"`
	RequestTimeoutMs int       `json:"request_timeout" validate:"gte=0,lte=300000"`
	WebhookSecret    string    `json:"webhook_secret"`
	WebhookURL       string    `json:"webhook_url" validate:"omitempty,url"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RequestTimeout returns the configured per-call deadline or fallback when unset
func (s *APISettings) RequestTimeout(fallback time.Duration) time.Duration {
	if s == nil || s.RequestTimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// Version returns the stored API version or fallback when unset
func (s *APISettings) Version(fallback string) string {
	if s == nil || s.APIVersion == "" {
		return fallback
	}
	return s.APIVersion
}

// PublicSettings is the settings view returned to API callers. Secrets are
// reduced to presence flags.
type PublicSettings struct {
	ID               string    `json:"id"`
	APIVersion       string    `json:"api_version"`
	BusinessID       string    `json:"business_id"`
	PhoneNumberID    string    `json:"phone_number_id"`
	WABAID           string    `json:"waba_id"`
	RequestTimeoutMs int       `json:"request_timeout"`
	WebhookURL       string    `json:"webhook_url"`
	HasAccessToken   bool      `json:"has_access_token"`
	HasWebhookSecret bool      `json:"has_webhook_secret"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Public returns the redacted view of s
func (s *APISettings) Public() PublicSettings {
	return PublicSettings{
		ID:               s.ID,
		APIVersion:       s.APIVersion,
		BusinessID:       s.BusinessID,
		PhoneNumberID:    s.PhoneNumberID,
		WABAID:           s.WABAID,
		RequestTimeoutMs: s.RequestTimeoutMs,
		WebhookURL:       s.WebhookURL,
		HasAccessToken:   s.AccessToken != "",
		HasWebhookSecret: s.WebhookSecret != "",
		UpdatedAt:        s.UpdatedAt,
	}
}
