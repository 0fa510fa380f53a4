package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"wabadash/internal/models"
	"wabadash/internal/service"
	"wabadash/pkg/media"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testConfig() *models.Config {
	return &models.Config{
		Environment: "development",
		Server:      models.ServerConfig{MaxBodyBytes: 1 << 20},
		Webhook:     models.WebhookConfig{VerifyToken: "verify-me"},
		Graph:       models.GraphConfig{DefaultAPIVersion: "v23.0"},
	}
}

func testSettings() *models.APISettings {
	return &models.APISettings{
		ID:            "settings-1",
		AccessToken:   "token-123",
		APIVersion:    "v23.0",
		BusinessID:    "111",
		PhoneNumberID: "222",
		WABAID:        "333",
		WebhookSecret: "shh",
	}
}

type staticSettings struct {
	settings *models.APISettings
	err      error
}

func (s *staticSettings) Get(context.Context) (*models.APISettings, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.settings
	return &cp, nil
}

// memoryWebhookStore records inserted responses in memory
type memoryWebhookStore struct {
	mu       sync.Mutex
	inserted []*models.ClientResponse
}

func (m *memoryWebhookStore) InsertClientResponse(_ context.Context, resp *models.ClientResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, resp)
	return nil
}

func (m *memoryWebhookStore) ClientResponseExistsByWamid(context.Context, string) (bool, error) {
	return false, nil
}

func (m *memoryWebhookStore) UpdateSentMessageStatus(context.Context, string, string, *string) (bool, error) {
	return false, nil
}

func (m *memoryWebhookStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inserted)
}

type mockSettingsAPI struct{ mock.Mock }

func (m *mockSettingsAPI) Public(ctx context.Context) (*models.PublicSettings, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*models.PublicSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSettingsAPI) Update(ctx context.Context, in models.APISettings) (*models.PublicSettings, error) {
	args := m.Called(ctx, in)
	if v := args.Get(0); v != nil {
		return v.(*models.PublicSettings), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSettingsAPI) Test(ctx context.Context) (*types.PhoneNumberInfo, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*types.PhoneNumberInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMessaging struct{ mock.Mock }

func (m *mockMessaging) SendText(ctx context.Context, req service.SendTextRequest) (*service.SendResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*service.SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockMessaging) SendTemplate(ctx context.Context, req service.SendTemplateRequest) (*service.SendResult, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*service.SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockResponses struct{ mock.Mock }

func (m *mockResponses) List(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.(*models.ClientResponsePage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResponses) Get(ctx context.Context, id string) (*models.ClientResponse, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.ClientResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResponses) Archive(ctx context.Context, id string) (*models.ClientResponse, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.ClientResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResponses) ToggleFlag(ctx context.Context, id string) (*models.ClientResponse, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.ClientResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockResponses) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockTemplates struct{ mock.Mock }

func (m *mockTemplates) List(ctx context.Context, limit int, after string) (*types.TemplateListResponse, error) {
	args := m.Called(ctx, limit, after)
	if v := args.Get(0); v != nil {
		return v.(*types.TemplateListResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockMedia struct{ mock.Mock }

func (m *mockMedia) Fetch(ctx context.Context, mediaURL string) (*media.Result, error) {
	args := m.Called(ctx, mediaURL)
	if v := args.Get(0); v != nil {
		return v.(*media.Result), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockHistory struct{ mock.Mock }

func (m *mockHistory) ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error) {
	args := m.Called(ctx, filter)
	if v := args.Get(0); v != nil {
		return v.(*models.APILogPage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistory) ListSentMessages(ctx context.Context, page models.Page) (*models.SentMessagePage, error) {
	args := m.Called(ctx, page)
	if v := args.Get(0); v != nil {
		return v.(*models.SentMessagePage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockHistory) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newTestServer(cfg *models.Config, deps Dependencies) *Server {
	return NewServer(cfg, deps, quietLogger(), false)
}

func doRequest(s *Server, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}
