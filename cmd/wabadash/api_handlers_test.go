package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/internal/monitor"
	"wabadash/internal/service"
	"wabadash/pkg/media"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSendText(t *testing.T) {
	messaging := new(mockMessaging)
	messaging.On("SendText", mock.Anything, service.SendTextRequest{To: "5511987654321", Body: "hello"}).
		Return(&service.SendResult{Wamid: "wamid.9", Status: models.SentStatusSent}, nil)
	s := newTestServer(testConfig(), Dependencies{Messaging: messaging})

	w := doRequest(s, http.MethodPost, "/api/messages/text", map[string]string{"to": "5511987654321", "body": "hello"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wamid.9", decodeBody(t, w)["wamid"])
}

func TestSendText_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", apperrors.NewValidationError("to", "to is required"), http.StatusBadRequest},
		{"missing config", apperrors.NewMissingConfigError("phone_number_id", "Phone number ID not configured"), http.StatusInternalServerError},
		{"provider", apperrors.NewAPIError("/v23.0/222/messages", 400, "Invalid parameter", nil), http.StatusBadGateway},
		{"timeout", apperrors.NewTimeoutError("/v23.0/222/messages", "5s"), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messaging := new(mockMessaging)
			messaging.On("SendText", mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestServer(testConfig(), Dependencies{Messaging: messaging})

			w := doRequest(s, http.MethodPost, "/api/messages/text", map[string]string{"to": "1", "body": "x"})

			assert.Equal(t, tt.wantCode, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(apperrors.GetCode(tt.err)), body["code"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestSendText_InvalidJSON(t *testing.T) {
	messaging := new(mockMessaging)
	s := newTestServer(testConfig(), Dependencies{Messaging: messaging})

	w := doRequest(s, http.MethodPost, "/api/messages/text", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	messaging.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything)
}

func TestSendTemplate(t *testing.T) {
	messaging := new(mockMessaging)
	want := service.SendTemplateRequest{
		To:           "5511987654321",
		TemplateName: "order_update",
		Language:     "en_US",
		Parameters:   []string{"Maria", "42"},
	}
	messaging.On("SendTemplate", mock.Anything, want).Return(&service.SendResult{Wamid: "wamid.10"}, nil)
	s := newTestServer(testConfig(), Dependencies{Messaging: messaging})

	w := doRequest(s, http.MethodPost, "/api/messages/template", want)

	assert.Equal(t, http.StatusOK, w.Code)
	messaging.AssertExpectations(t)
}

func TestListResponses_ParsesFilters(t *testing.T) {
	responses := new(mockResponses)
	responses.On("List", mock.Anything, models.ClientResponseFilter{
		MessageType:     "text",
		Search:          "maria",
		IncludeArchived: true,
		FlaggedOnly:     true,
		Page:            models.Page{Number: 2, Size: 100},
	}).Return(&models.ClientResponsePage{Total: 0, Page: 2, PageSize: 100}, nil)
	s := newTestServer(testConfig(), Dependencies{Responses: responses})

	w := doRequest(s, http.MethodGet, "/api/responses?type=text&search=maria&include_archived=true&flagged_only=1&page=2&page_size=500", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	responses.AssertExpectations(t)
}

func TestResponseActions(t *testing.T) {
	flagged := &models.ClientResponse{ID: "r1", Flags: models.Flags{models.FlagFlagged: true}}
	responses := new(mockResponses)
	responses.On("Get", mock.Anything, "r1").Return(flagged, nil)
	responses.On("Get", mock.Anything, "missing").Return(nil, apperrors.NewNotFoundError("client response", "missing"))
	responses.On("Archive", mock.Anything, "r1").Return(flagged, nil)
	responses.On("ToggleFlag", mock.Anything, "r1").Return(flagged, nil)
	responses.On("Delete", mock.Anything, "r1").Return(nil)
	s := newTestServer(testConfig(), Dependencies{Responses: responses})

	tests := []struct {
		name     string
		method   string
		target   string
		wantCode int
	}{
		{"get", http.MethodGet, "/api/responses/r1", http.StatusOK},
		{"get missing", http.MethodGet, "/api/responses/missing", http.StatusNotFound},
		{"archive", http.MethodPost, "/api/responses/r1/archive", http.StatusOK},
		{"flag", http.MethodPost, "/api/responses/r1/flag", http.StatusOK},
		{"delete", http.MethodDelete, "/api/responses/r1", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(s, tt.method, tt.target, nil)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestListTemplates(t *testing.T) {
	templates := new(mockTemplates)
	templates.On("List", mock.Anything, 50, "cursor-1").Return(&types.TemplateListResponse{
		Data: []types.TemplateSummary{{ID: "t1", Name: "order_update", Status: "APPROVED"}},
	}, nil)
	s := newTestServer(testConfig(), Dependencies{Templates: templates})

	w := doRequest(s, http.MethodGet, "/api/templates?limit=50&after=cursor-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	templates.AssertExpectations(t)
}

type fakeTemplateProvider struct{}

func (fakeTemplateProvider) CreateTemplate(context.Context, whatsapp.Credentials, *types.TemplateDefinition) (*types.CreateTemplateResponse, error) {
	return &types.CreateTemplateResponse{ID: "tmpl-1", Status: "PENDING"}, nil
}

func (fakeTemplateProvider) GetTemplateStatus(context.Context, whatsapp.Credentials, string) (*types.TemplateStatusResponse, error) {
	return &types.TemplateStatusResponse{ID: "tmpl-1", Status: "PENDING"}, nil
}

func newSubmissionServer(t *testing.T) *Server {
	t.Helper()
	mon := monitor.NewTemplateMonitor(fakeTemplateProvider{}, &staticSettings{settings: testSettings()},
		nil, nil, nil, quietLogger(), monitor.Options{InitialDelay: time.Hour, Interval: time.Hour})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = mon.Shutdown(ctx)
	})
	return newTestServer(testConfig(), Dependencies{Monitor: mon})
}

var validDefinition = types.TemplateDefinition{
	Name:     "order_update",
	Category: "UTILITY",
	Language: "en_US",
	Components: []types.TemplateComponent{
		{Type: "BODY", Text: "Your order {{1}} has shipped"},
	},
}

func TestTemplateSubmissionLifecycle(t *testing.T) {
	s := newSubmissionServer(t)

	w := doRequest(s, http.MethodPost, "/api/templates", validDefinition)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var snap monitor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, monitor.StateMonitoring, snap.Status)
	assert.Equal(t, "tmpl-1", snap.TemplateID)

	w = doRequest(s, http.MethodGet, "/api/templates/submissions/"+snap.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/templates/submissions", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody(t, w)["items"], 1)

	w = doRequest(s, http.MethodDelete, "/api/templates/submissions/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stopped monitor.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stopped))
	assert.Equal(t, monitor.StateIdle, stopped.Status)
	assert.Empty(t, stopped.TemplateID)

	w = doRequest(s, http.MethodDelete, "/api/templates/submissions/"+snap.ID+"?forget=true", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(s, http.MethodGet, "/api/templates/submissions/"+snap.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTemplateSubmission_InvalidDefinition(t *testing.T) {
	s := newSubmissionServer(t)
	def := validDefinition
	def.Name = "Not Valid"

	w := doRequest(s, http.MethodPost, "/api/templates", def)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperrors.ErrCodeValidationFailed), decodeBody(t, w)["code"])
}

func TestSubmissionNotFound(t *testing.T) {
	s := newSubmissionServer(t)

	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodGet, "/api/templates/submissions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodDelete, "/api/templates/submissions/nope", nil).Code)
}

func TestMediaDownload(t *testing.T) {
	proxy := new(mockMedia)
	proxy.On("Fetch", mock.Anything, "https://lookaside.fbsbx.com/a.jpg").Return(&media.Result{
		Success:     true,
		ImageData:   "aGVsbG8=",
		ContentType: "image/jpeg",
		Size:        5,
	}, nil)
	s := newTestServer(testConfig(), Dependencies{Media: proxy})

	w := doRequest(s, http.MethodPost, "/api/media/download", map[string]string{"imageUrl": "https://lookaside.fbsbx.com/a.jpg"})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "aGVsbG8=", body["imageData"])
	assert.Equal(t, "image/jpeg", body["contentType"])
	assert.Equal(t, float64(5), body["size"])
}

func TestMediaDownload_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"missing url", apperrors.NewInputError("imageUrl is required", nil), http.StatusBadRequest, "imageUrl is required"},
		{"missing token", apperrors.NewMissingConfigError("access_token", "Access token not found"), http.StatusInternalServerError, "Access token not found"},
		{"upstream", &media.UpstreamError{StatusCode: http.StatusNotFound}, http.StatusNotFound, "Failed to download image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proxy := new(mockMedia)
			proxy.On("Fetch", mock.Anything, mock.Anything).Return(nil, tt.err)
			s := newTestServer(testConfig(), Dependencies{Media: proxy})

			w := doRequest(s, http.MethodPost, "/api/media/download", map[string]string{"imageUrl": ""})

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeBody(t, w)["error"])
		})
	}
}

func TestSettingsEndpoints(t *testing.T) {
	admin := new(mockSettingsAPI)
	admin.On("Public", mock.Anything).Return(&models.PublicSettings{ID: "settings-1", HasAccessToken: true}, nil)
	admin.On("Test", mock.Anything).Return(&types.PhoneNumberInfo{ID: "222", VerifiedName: "Acme"}, nil)
	s := newTestServer(testConfig(), Dependencies{Admin: admin})

	w := doRequest(s, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["has_access_token"])
	assert.NotContains(t, body, "access_token")

	w = doRequest(s, http.MethodPost, "/api/settings/test", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["success"])
}

func TestHistoryEndpoints(t *testing.T) {
	history := new(mockHistory)
	history.On("ListAPILogs", mock.Anything, models.APILogFilter{
		Endpoint: "whatsapp-webhook",
		Status:   500,
		Page:     models.Page{Number: 1, Size: 20},
	}).Return(&models.APILogPage{Page: 1, PageSize: 20}, nil)
	history.On("ListSentMessages", mock.Anything, models.Page{Number: 3, Size: 10}).
		Return(&models.SentMessagePage{Page: 3, PageSize: 10}, nil)
	s := newTestServer(testConfig(), Dependencies{History: history})

	w := doRequest(s, http.MethodGet, "/api/logs?endpoint=whatsapp-webhook&status=500", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/api/sent-messages?page=3&page_size=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	history.AssertExpectations(t)
}
