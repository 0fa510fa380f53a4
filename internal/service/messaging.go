package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "wabadash/internal/errors"
	"wabadash/internal/models"
	"wabadash/internal/validation"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// Audit endpoint prefixes for outbound sends
const (
	sendKindCustom   = "CUSTOM_MESSAGE"
	sendKindTemplate = "MESSAGE"
)

// MessageSender is the provider surface used to send messages
type MessageSender interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) (*types.SendMessageResponse, error)
	SendTemplate(ctx context.Context, creds whatsapp.Credentials, to string, tmpl *types.TemplatePayload) (*types.SendMessageResponse, error)
}

// SentMessageRecorder stores outbound message rows
type SentMessageRecorder interface {
	InsertSentMessage(ctx context.Context, msg *models.SentMessage) error
}

// SendTextRequest is a free-form reply to a client
type SendTextRequest struct {
	To         string `json:"to" validate:"required,wa_phone"`
	Body       string `json:"body" validate:"required,max=4096"`
	ClientName string `json:"client_name,omitempty" validate:"max=256"`
}

// SendTemplateRequest sends an approved template with positional body parameters
type SendTemplateRequest struct {
	To           string   `json:"to" validate:"required,wa_phone"`
	TemplateName string   `json:"template_name" validate:"required,max=512,template_name"`
	Language     string   `json:"language" validate:"required,min=2,max=15"`
	Parameters   []string `json:"parameters" validate:"max=20,dive,max=1024"`
}

// SendResult describes an accepted outbound message
type SendResult struct {
	Wamid         string `json:"wamid"`
	SentMessageID string `json:"sent_message_id,omitempty"`
	Status        string `json:"status"`
}

// MessagingService sends text and template messages and keeps the sent
// message log and audit trail
type MessagingService struct {
	client    MessageSender
	store     SentMessageRecorder
	settings  SettingsSource
	events    EventRecorder
	validator *validation.Validator
	graph     models.GraphConfig
	logger    *logrus.Logger
}

func NewMessagingService(client MessageSender, store SentMessageRecorder, settings SettingsSource, events EventRecorder, graph models.GraphConfig, logger *logrus.Logger) *MessagingService {
	if events == nil {
		events = NopRecorder{}
	}
	return &MessagingService{
		client:    client,
		store:     store,
		settings:  settings,
		events:    events,
		validator: validation.New(),
		graph:     graph,
		logger:    logger,
	}
}

// outbound describes one send for the shared send path
type outbound struct {
	kind         string
	to           string
	templateName string
	parameters   json.RawMessage
	startBody    map[string]any
	request      *types.SendMessageRequest
	call         func(ctx context.Context, creds whatsapp.Credentials) (*types.SendMessageResponse, error)
}

// SendText sends a free-form text message
func (s *MessagingService) SendText(ctx context.Context, req SendTextRequest) (*SendResult, error) {
	if err := s.validator.Struct(&req); err != nil {
		return nil, err
	}

	to := validation.NormalizePhoneNumber(req.To)
	params, _ := json.Marshal([]map[string]string{{"text": req.Body}})

	return s.send(ctx, outbound{
		kind:         sendKindCustom,
		to:           to,
		templateName: models.CustomMessageTemplate,
		parameters:   params,
		startBody: map[string]any{
			"phoneNumber":   to,
			"messageLength": len(req.Body),
			"clientName":    req.ClientName,
		},
		request: &types.SendMessageRequest{
			MessagingProduct: types.MessagingProduct,
			RecipientType:    types.RecipientIndividual,
			To:               to,
			Type:             "text",
			Text:             &types.TextBody{Body: req.Body},
		},
		call: func(ctx context.Context, creds whatsapp.Credentials) (*types.SendMessageResponse, error) {
			return s.client.SendText(ctx, creds, to, req.Body)
		},
	})
}

// SendTemplate sends an approved template. Parameters fill the body
// placeholders in order.
func (s *MessagingService) SendTemplate(ctx context.Context, req SendTemplateRequest) (*SendResult, error) {
	if err := s.validator.Struct(&req); err != nil {
		return nil, err
	}

	to := validation.NormalizePhoneNumber(req.To)
	payload := TemplatePayload(req.TemplateName, req.Language, req.Parameters)

	textParams := make([]map[string]string, 0, len(req.Parameters))
	for _, p := range req.Parameters {
		textParams = append(textParams, map[string]string{"text": p})
	}
	params, _ := json.Marshal(textParams)

	return s.send(ctx, outbound{
		kind:         sendKindTemplate,
		to:           to,
		templateName: req.TemplateName,
		parameters:   params,
		startBody: map[string]any{
			"phoneNumber":  to,
			"templateName": req.TemplateName,
			"language":     req.Language,
			"parameters":   len(req.Parameters),
		},
		request: &types.SendMessageRequest{
			MessagingProduct: types.MessagingProduct,
			RecipientType:    types.RecipientIndividual,
			To:               to,
			Type:             "template",
			Template:         payload,
		},
		call: func(ctx context.Context, creds whatsapp.Credentials) (*types.SendMessageResponse, error) {
			return s.client.SendTemplate(ctx, creds, to, payload)
		},
	})
}

func (s *MessagingService) send(ctx context.Context, out outbound) (*SendResult, error) {
	s.events.Record(ctx, Event{
		Endpoint:       out.kind + "_SEND_START",
		Method:         models.MethodInternal,
		RequestBody:    out.startBody,
		ResponseBody:   map[string]string{"message": "Starting message send"},
		ResponseStatus: http.StatusOK,
	})

	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.recordSendError(ctx, out, err)
		return nil, err
	}
	creds := Credentials(settings, s.graph)
	if creds.AccessToken == "" || creds.PhoneNumberID == "" {
		err := apperrors.NewMissingConfigError("phone_number_id", "Phone number ID or access token not configured")
		s.recordSendError(ctx, out, err)
		return nil, err
	}

	endpoint := fmt.Sprintf(types.EndpointMessages, creds.APIVersion, creds.PhoneNumberID)
	resp, callErr := out.call(ctx, creds)
	s.events.Record(ctx, ProviderCallEvent(endpoint, http.MethodPost, out.request, resp, callErr))

	if callErr != nil {
		err := ProviderError(endpoint, creds.Timeout, callErr)
		s.storeSent(ctx, &models.SentMessage{
			TemplateName: out.templateName,
			PhoneNumber:  out.to,
			Status:       models.SentStatusFailed,
			Parameters:   out.parameters,
			ErrorMessage: models.StringPtr(apperrors.GetUserMessage(err)),
		})
		s.recordSendError(ctx, out, err)
		return nil, err
	}

	wamid := resp.MessageID()
	sent := &models.SentMessage{
		TemplateName: out.templateName,
		PhoneNumber:  out.to,
		Status:       models.SentStatusSent,
		Wamid:        models.StringPtr(wamid),
		Parameters:   out.parameters,
	}
	s.storeSent(ctx, sent)

	s.events.Record(ctx, Event{
		Endpoint:       out.kind + "_SEND_SUCCESS",
		Method:         models.MethodInternal,
		RequestBody:    map[string]string{"messageId": wamid, "phoneNumber": out.to},
		ResponseBody:   map[string]string{"message": "Message sent successfully"},
		ResponseStatus: http.StatusOK,
	})

	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldOperation:    out.kind,
		LogFieldPhone:        phoneField(ctx, out.to),
		LogFieldTemplateName: out.templateName,
	}).Info("Message sent")

	return &SendResult{
		Wamid:         wamid,
		SentMessageID: sent.ID,
		Status:        models.SentStatusSent,
	}, nil
}

// storeSent logs but does not return insert failures; the message has
// already left by the time the row is written
func (s *MessagingService) storeSent(ctx context.Context, msg *models.SentMessage) {
	if err := s.store.InsertSentMessage(ctx, msg); err != nil {
		LogWithContext(ctx, s.logger).WithError(err).
			WithField(LogFieldPhone, phoneField(ctx, msg.PhoneNumber)).
			Error("Failed to record sent message")
	}
}

func (s *MessagingService) recordSendError(ctx context.Context, out outbound, err error) {
	s.events.Record(ctx, Event{
		Endpoint:       out.kind + "_SEND_ERROR",
		Method:         models.MethodInternal,
		RequestBody:    map[string]string{"phoneNumber": out.to, "templateName": out.templateName},
		ResponseStatus: http.StatusInternalServerError,
		ErrorMessage:   apperrors.GetUserMessage(err),
	})

	LogWithContext(ctx, s.logger).WithError(err).WithFields(logrus.Fields{
		LogFieldOperation: out.kind,
		LogFieldPhone:     phoneField(ctx, out.to),
	}).Error("Failed to send message")
}

// TemplatePayload builds the send payload for a template with body parameters
func TemplatePayload(name, language string, parameters []string) *types.TemplatePayload {
	payload := &types.TemplatePayload{
		Name:     name,
		Language: types.LanguageCode{Code: language},
	}
	if len(parameters) == 0 {
		return payload
	}

	body := types.SendComponent{Type: "body"}
	for _, p := range parameters {
		body.Parameters = append(body.Parameters, types.SendParameter{Type: "text", Text: p})
	}
	payload.Components = []types.SendComponent{body}
	return payload
}
