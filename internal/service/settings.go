package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/internal/validation"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// SettingsStorage reads and writes the settings row
type SettingsStorage interface {
	SettingsSource
	Save(ctx context.Context, s *models.APISettings) error
}

// PhoneNumberLookup is the provider call used to test credentials
type PhoneNumberLookup interface {
	GetPhoneNumber(ctx context.Context, creds whatsapp.Credentials) (*types.PhoneNumberInfo, error)
}

// SettingsService exposes the stored settings without their secrets and
// tests them against the provider
type SettingsService struct {
	settings  SettingsStorage
	client    PhoneNumberLookup
	events    EventRecorder
	validator *validation.Validator
	graph     models.GraphConfig
	logger    *logrus.Logger
}

func NewSettingsService(settings SettingsStorage, client PhoneNumberLookup, events EventRecorder, graph models.GraphConfig, logger *logrus.Logger) *SettingsService {
	if events == nil {
		events = NopRecorder{}
	}
	return &SettingsService{
		settings:  settings,
		client:    client,
		events:    events,
		validator: validation.New(),
		graph:     graph,
		logger:    logger,
	}
}

// Public returns the redacted settings
func (s *SettingsService) Public(ctx context.Context) (*models.PublicSettings, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	pub := current.Public()
	return &pub, nil
}

// Update replaces the stored settings. Blank secrets keep the stored
// values so the redacted view can be posted back unchanged.
func (s *SettingsService) Update(ctx context.Context, in models.APISettings) (*models.PublicSettings, error) {
	in.AccessToken = strings.TrimSpace(in.AccessToken)
	in.WebhookSecret = strings.TrimSpace(in.WebhookSecret)

	current, err := s.settings.Get(ctx)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeMissingConfig) {
		return nil, err
	}
	if current != nil {
		in.ID = current.ID
		in.CreatedAt = current.CreatedAt
		if in.AccessToken == "" {
			in.AccessToken = current.AccessToken
		}
		if in.WebhookSecret == "" {
			in.WebhookSecret = current.WebhookSecret
		}
	}

	if err := s.validator.Struct(&in); err != nil {
		return nil, err
	}
	if err := s.settings.Save(ctx, &in); err != nil {
		return nil, err
	}

	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		"phone_number_id": in.PhoneNumberID,
		"waba_id":         in.WABAID,
		"api_version":     in.APIVersion,
	}).Info("API settings updated")

	pub := in.Public()
	return &pub, nil
}

// Test looks up the configured phone number with the stored credentials
func (s *SettingsService) Test(ctx context.Context) (*types.PhoneNumberInfo, error) {
	current, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	creds := Credentials(current, s.graph)
	endpoint := fmt.Sprintf("/%s/%s", creds.APIVersion, creds.PhoneNumberID)

	info, callErr := s.client.GetPhoneNumber(ctx, creds)

	s.events.Record(ctx, ProviderCallEvent(endpoint, http.MethodGet, nil, info, callErr))

	if callErr != nil {
		err := ProviderError(endpoint, creds.Timeout, callErr)
		LogWithContext(ctx, s.logger).WithError(err).Warn("API credentials test failed")
		return nil, err
	}

	LogWithContext(ctx, s.logger).WithField("verified_name", info.VerifiedName).Info("API credentials verified")
	return info, nil
}
