package service

import (
	"context"
	"sync"

	"wabadash/internal/models"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/stretchr/testify/mock"
)

// Mock row store
type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetSettings(ctx context.Context) (*models.APISettings, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.APISettings), args.Error(1)
}

func (m *mockStore) SaveSettings(ctx context.Context, s *models.APISettings) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *mockStore) InsertClientResponse(ctx context.Context, resp *models.ClientResponse) error {
	args := m.Called(ctx, resp)
	return args.Error(0)
}

func (m *mockStore) ClientResponseExistsByWamid(ctx context.Context, wamid string) (bool, error) {
	args := m.Called(ctx, wamid)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) GetClientResponse(ctx context.Context, id string) (*models.ClientResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClientResponse), args.Error(1)
}

func (m *mockStore) ListClientResponses(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClientResponsePage), args.Error(1)
}

func (m *mockStore) UpdateClientResponseFlags(ctx context.Context, id string, patch models.Flags) (*models.ClientResponse, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ClientResponse), args.Error(1)
}

func (m *mockStore) DeleteClientResponse(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockStore) InsertAPILog(ctx context.Context, log *models.APILog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *mockStore) ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.APILogPage), args.Error(1)
}

func (m *mockStore) InsertSentMessage(ctx context.Context, msg *models.SentMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockStore) UpdateSentMessageStatus(ctx context.Context, wamid, status string, errorMessage *string) (bool, error) {
	args := m.Called(ctx, wamid, status, errorMessage)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListSentMessages(ctx context.Context, page models.Page) (*models.SentMessagePage, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SentMessagePage), args.Error(1)
}

// Mock WhatsApp client
type mockWhatsAppClient struct {
	mock.Mock
}

var _ whatsapp.API = (*mockWhatsAppClient)(nil)

func (m *mockWhatsAppClient) CreateTemplate(ctx context.Context, creds whatsapp.Credentials, def *types.TemplateDefinition) (*types.CreateTemplateResponse, error) {
	args := m.Called(ctx, creds, def)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.CreateTemplateResponse), args.Error(1)
}

func (m *mockWhatsAppClient) GetTemplateStatus(ctx context.Context, creds whatsapp.Credentials, templateID string) (*types.TemplateStatusResponse, error) {
	args := m.Called(ctx, creds, templateID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TemplateStatusResponse), args.Error(1)
}

func (m *mockWhatsAppClient) ListTemplates(ctx context.Context, creds whatsapp.Credentials, limit int, after string) (*types.TemplateListResponse, error) {
	args := m.Called(ctx, creds, limit, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TemplateListResponse), args.Error(1)
}

func (m *mockWhatsAppClient) SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, creds, to, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

func (m *mockWhatsAppClient) SendTemplate(ctx context.Context, creds whatsapp.Credentials, to string, tmpl *types.TemplatePayload) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, creds, to, tmpl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

func (m *mockWhatsAppClient) SendMessage(ctx context.Context, creds whatsapp.Credentials, req *types.SendMessageRequest) (*types.SendMessageResponse, error) {
	args := m.Called(ctx, creds, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.SendMessageResponse), args.Error(1)
}

func (m *mockWhatsAppClient) GetMediaURL(ctx context.Context, creds whatsapp.Credentials, mediaID string) (*types.MediaInfo, error) {
	args := m.Called(ctx, creds, mediaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.MediaInfo), args.Error(1)
}

func (m *mockWhatsAppClient) DownloadMedia(ctx context.Context, creds whatsapp.Credentials, mediaURL string, maxBytes int64) (*types.DownloadedMedia, error) {
	args := m.Called(ctx, creds, mediaURL, maxBytes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.DownloadedMedia), args.Error(1)
}

func (m *mockWhatsAppClient) GetPhoneNumber(ctx context.Context, creds whatsapp.Credentials) (*types.PhoneNumberInfo, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.PhoneNumberInfo), args.Error(1)
}

// Mock event publisher
type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, subject, eventType string, data any) error {
	args := m.Called(ctx, subject, eventType, data)
	return args.Error(0)
}

func (m *mockPublisher) Close() {}

// captureRecorder keeps every recorded event in order
type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *captureRecorder) Record(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *captureRecorder) endpoints() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Endpoint)
	}
	return out
}

func (r *captureRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// staticSettings is a SettingsStorage backed by a single value
type staticSettings struct {
	settings *models.APISettings
	err      error
	saved    *models.APISettings
}

func (s *staticSettings) Get(context.Context) (*models.APISettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := *s.settings
	return &out, nil
}

func (s *staticSettings) Save(_ context.Context, in *models.APISettings) error {
	s.saved = in
	return nil
}

func testSettings() *models.APISettings {
	return &models.APISettings{
		ID:               "settings-1",
		AccessToken:      "token-123",
		APIVersion:       "v23.0",
		BusinessID:       "111",
		PhoneNumberID:    "222",
		WABAID:           "333",
		RequestTimeoutMs: 5000,
		WebhookSecret:    "shh",
	}
}
