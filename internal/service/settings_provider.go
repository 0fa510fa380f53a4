package service

import (
	"context"
	"sync"
	"time"

	"wabadash/internal/constants"
	"wabadash/internal/database"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/pkg/whatsapp"
)

// SettingsSource yields the provider settings in effect for an operation
type SettingsSource interface {
	Get(ctx context.Context) (*models.APISettings, error)
}

// SettingsProvider reads the stored settings row and caches it for a TTL.
// Saves made through it invalidate the cache.
type SettingsProvider struct {
	store database.SettingsStore
	ttl   time.Duration
	now   func() time.Time

	mu        sync.RWMutex
	cached    *models.APISettings
	fetchedAt time.Time
}

// NewSettingsProvider returns a provider. A ttl of zero disables caching.
func NewSettingsProvider(store database.SettingsStore, ttl time.Duration) *SettingsProvider {
	return &SettingsProvider{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the current settings. A missing row is a
// MISSING_CONFIG error.
func (p *SettingsProvider) Get(ctx context.Context) (*models.APISettings, error) {
	if s := p.fromCache(); s != nil {
		return s, nil
	}

	s, err := p.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperrors.NewMissingConfigError("api_settings", "API settings not configured")
	}

	if p.ttl > 0 {
		p.mu.Lock()
		p.cached = s
		p.fetchedAt = p.now()
		p.mu.Unlock()
	}

	out := *s
	return &out, nil
}

func (p *SettingsProvider) fromCache() *models.APISettings {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.cached == nil || p.now().Sub(p.fetchedAt) >= p.ttl {
		return nil
	}
	out := *p.cached
	return &out
}

// Save stores settings and drops the cached copy
func (p *SettingsProvider) Save(ctx context.Context, s *models.APISettings) error {
	defer p.Invalidate()
	return p.store.SaveSettings(ctx, s)
}

// Invalidate drops the cached settings
func (p *SettingsProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.fetchedAt = time.Time{}
	p.mu.Unlock()
}

// Credentials builds provider credentials from stored settings, falling back
// to the graph defaults for the API version and per-call timeout
func Credentials(s *models.APISettings, graph models.GraphConfig) whatsapp.Credentials {
	fallbackVersion := graph.DefaultAPIVersion
	if fallbackVersion == "" {
		fallbackVersion = constants.DefaultAPIVersion
	}
	fallbackTimeout := time.Duration(graph.DefaultTimeoutSec) * time.Second
	if fallbackTimeout <= 0 {
		fallbackTimeout = time.Duration(constants.DefaultHTTPTimeoutSec) * time.Second
	}
	if s == nil {
		return whatsapp.Credentials{APIVersion: fallbackVersion, Timeout: fallbackTimeout}
	}

	return whatsapp.Credentials{
		AccessToken:   s.AccessToken,
		APIVersion:    s.Version(fallbackVersion),
		BusinessID:    s.BusinessID,
		WABAID:        s.WABAID,
		PhoneNumberID: s.PhoneNumberID,
		Timeout:       s.RequestTimeout(fallbackTimeout),
	}
}

// CredentialResolver turns the cached settings into provider credentials.
// A missing settings row yields credentials without an access token.
type CredentialResolver struct {
	settings SettingsSource
	graph    models.GraphConfig
}

func NewCredentialResolver(settings SettingsSource, graph models.GraphConfig) *CredentialResolver {
	return &CredentialResolver{settings: settings, graph: graph}
}

func (r *CredentialResolver) Credentials(ctx context.Context) (whatsapp.Credentials, error) {
	s, err := r.settings.Get(ctx)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeMissingConfig) {
		return whatsapp.Credentials{}, err
	}
	return Credentials(s, r.graph), nil
}
