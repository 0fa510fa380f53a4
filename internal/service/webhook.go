package service

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wabadash/internal/constants"
	"wabadash/internal/metrics"
	"wabadash/internal/models"
	"wabadash/internal/notify"
	"wabadash/internal/privacy"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// WebhookEndpoint is the audit endpoint name for notification deliveries
const WebhookEndpoint = "whatsapp-webhook"

// Webhook outcomes reported to metrics
const (
	WebhookOutcomeProcessed        = "processed"
	WebhookOutcomePartial          = "partial"
	WebhookOutcomeVerified         = "verified"
	WebhookOutcomeVerifyFailed     = "verify_failed"
	WebhookOutcomeInvalidSignature = "invalid_signature"
	WebhookOutcomeMissingSignature = "missing_signature"
	WebhookOutcomeSettings         = "settings_unavailable"
	WebhookOutcomeMalformed        = "malformed"
	WebhookOutcomeMethod           = "method_not_allowed"
)

// WebhookStore is the store surface used by webhook ingestion
type WebhookStore interface {
	InsertClientResponse(ctx context.Context, resp *models.ClientResponse) error
	ClientResponseExistsByWamid(ctx context.Context, wamid string) (bool, error)
	UpdateSentMessageStatus(ctx context.Context, wamid, status string, errorMessage *string) (bool, error)
}

// MediaResolver resolves a media id to a short-lived download URL
type MediaResolver interface {
	GetMediaURL(ctx context.Context, creds whatsapp.Credentials, mediaID string) (*types.MediaInfo, error)
}

// WebhookOptions configures ingestion
type WebhookOptions struct {
	VerifyToken string
	Dedupe      bool
	Graph       models.GraphConfig
}

// IngestResult summarises one notification delivery
type IngestResult struct {
	Processed     int `json:"processed_messages"`
	Failed        int `json:"failed_messages"`
	Duplicates    int `json:"duplicate_messages"`
	StatusUpdates int `json:"status_updates"`
}

// WebhookService normalizes and stores inbound provider notifications
type WebhookService struct {
	store     WebhookStore
	media     MediaResolver
	events    EventRecorder
	publisher notify.Publisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	opts      WebhookOptions
	now       func() time.Time
}

func NewWebhookService(store WebhookStore, media MediaResolver, events EventRecorder, publisher notify.Publisher, m *metrics.Metrics, logger *logrus.Logger, opts WebhookOptions) *WebhookService {
	if events == nil {
		events = NopRecorder{}
	}
	if publisher == nil {
		publisher = notify.NoopPublisher{}
	}
	if opts.VerifyToken == "" {
		opts.VerifyToken = constants.DefaultVerifyToken
	}
	return &WebhookService{
		store:     store,
		media:     media,
		events:    events,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// VerifySubscription checks the subscribe handshake. The expected token is
// never logged.
func (s *WebhookService) VerifySubscription(mode, token string) bool {
	ok := mode == constants.SubscribeMode &&
		subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.VerifyToken)) == 1

	if ok {
		s.metrics.RecordWebhook(WebhookOutcomeVerified)
		s.logger.Info("Webhook subscription verified")
	} else {
		s.metrics.RecordWebhook(WebhookOutcomeVerifyFailed)
		s.logger.WithField("mode", mode).Warn("Webhook verification failed")
	}
	return ok
}

// Reject records a delivery refused before any message was processed
func (s *WebhookService) Reject(ctx context.Context, outcome string, status int, err error) {
	s.metrics.RecordWebhook(outcome)

	entry := LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldReason:     outcome,
		LogFieldStatusCode: status,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("Webhook delivery rejected")

	ev := Event{
		Endpoint:       WebhookEndpoint,
		Method:         models.MethodWebhook,
		ResponseStatus: status,
		ResponseBody:   map[string]any{"success": false, "reason": outcome},
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}
	s.events.Record(ctx, ev)
}

// Ingest processes every message and status in payload. Failures are
// isolated per message so the batch can still be acknowledged.
func (s *WebhookService) Ingest(ctx context.Context, payload *types.WebhookPayload, settings *models.APISettings) IngestResult {
	var result IngestResult
	creds := Credentials(settings, s.opts.Graph)
	receivedAt := s.now().UTC()
	messages := 0

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != types.WebhookFieldMessages {
				s.logger.WithField("field", change.Field).Debug("Skipping webhook change: unsupported field")
				continue
			}

			for i, raw := range change.Value.Messages {
				messages++
				duplicate, err := s.processMessage(ctx, raw, change.Value.Contacts, creds, receivedAt)
				if err != nil {
					result.Failed++
					s.metrics.RecordIngestFailure("message")
					LogWithContext(ctx, s.logger).WithError(err).
						WithField("index", i).
						Error("Failed to process inbound message")
					continue
				}
				result.Processed++
				if duplicate {
					result.Duplicates++
				}
			}

			for _, status := range change.Value.Statuses {
				updated, err := s.processStatus(ctx, status)
				if err != nil {
					s.metrics.RecordIngestFailure("status")
					LogWithContext(ctx, s.logger).WithError(err).Error("Failed to apply delivery status")
					continue
				}
				if updated {
					result.StatusUpdates++
				}
			}
		}
	}

	outcome := WebhookOutcomeProcessed
	if result.Failed > 0 {
		outcome = WebhookOutcomePartial
	}
	s.metrics.RecordWebhook(outcome)

	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldProcessed: result.Processed,
		LogFieldFailed:    result.Failed,
		"duplicates":      result.Duplicates,
		"status_updates":  result.StatusUpdates,
	}).Info("Webhook batch processed")

	ev := Event{
		Endpoint: WebhookEndpoint,
		Method:   models.MethodWebhook,
		RequestBody: map[string]any{
			"object":   payload.Object,
			"entries":  len(payload.Entry),
			"messages": messages,
		},
		ResponseBody:   result,
		ResponseStatus: 200,
	}
	if result.Failed > 0 {
		ev.ErrorMessage = fmt.Sprintf("%d of %d messages failed", result.Failed, messages)
	}
	s.events.Record(ctx, ev)

	return result
}

// processMessage stores one message. It reports duplicate=true when the
// message was skipped because its wamid is already stored.
func (s *WebhookService) processMessage(ctx context.Context, raw json.RawMessage, contacts []types.Contact, creds whatsapp.Credentials, receivedAt time.Time) (duplicate bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while processing message: %v", p)
		}
	}()

	msg, err := types.ParseInboundMessage(raw)
	if err != nil {
		return false, fmt.Errorf("failed to decode message: %w", err)
	}

	fields := messageFields(ctx, msg.ID, msg.From, msg.Type)

	if s.opts.Dedupe && msg.ID != "" {
		exists, err := s.store.ClientResponseExistsByWamid(ctx, msg.ID)
		if err != nil {
			s.logger.WithError(err).WithFields(fields).Warn("Failed to check for duplicate message, inserting anyway")
		} else if exists {
			s.logger.WithFields(fields).Info("Skipping inbound message: already stored")
			return true, nil
		}
	}

	record := NormalizeMessage(msg, contacts, receivedAt)
	if msg.Type == types.MessageKindImage && msg.Image != nil && msg.Image.ID != "" {
		record.ImageURL = s.resolveMediaURL(ctx, creds, msg.Image.ID, fields)
	}

	if err := s.store.InsertClientResponse(ctx, record); err != nil {
		return false, fmt.Errorf("failed to store message: %w", err)
	}

	s.metrics.RecordIngested(record.MessageType)
	s.logger.WithFields(fields).WithField(LogFieldResponseID, record.ID).Info("Stored inbound message")

	if err := s.publisher.Publish(ctx, notify.ResponseSubject(record.MessageType), notify.EventInboundResponse, record); err != nil {
		s.logger.WithError(err).WithFields(fields).Warn("Failed to publish inbound message event")
	}
	return false, nil
}

// resolveMediaURL returns nil when the lookup fails; the message is still stored
func (s *WebhookService) resolveMediaURL(ctx context.Context, creds whatsapp.Credentials, mediaID string, fields logrus.Fields) *string {
	if s.media == nil {
		return nil
	}
	info, err := s.media.GetMediaURL(ctx, creds, mediaID)
	if err != nil {
		s.metrics.RecordIngestFailure("media")
		s.logger.WithError(ProviderError("media_lookup", creds.Timeout, err)).
			WithFields(fields).
			Warn("Failed to resolve media URL, storing message without it")
		return nil
	}
	return models.StringPtr(info.URL)
}

func (s *WebhookService) processStatus(ctx context.Context, st types.MessageStatus) (bool, error) {
	if st.ID == "" || st.Status == "" {
		return false, nil
	}

	status := strings.ToUpper(st.Status)
	var errMsg *string
	if len(st.Errors) > 0 {
		first := st.Errors[0]
		msg := first.Message
		if msg == "" {
			msg = first.Title
		}
		errMsg = models.StringPtr(msg)
	}

	updated, err := s.store.UpdateSentMessageStatus(ctx, st.ID, status, errMsg)
	if err != nil {
		return false, err
	}
	s.metrics.RecordStatusUpdate(strings.ToLower(status))

	if !updated {
		s.logger.WithField(LogFieldWamid, maskedWamid(ctx, st.ID)).Debug("Ignoring status for unknown message")
		return false, nil
	}

	event := map[string]any{
		"wamid":        st.ID,
		"status":       status,
		"recipient_id": st.RecipientID,
		"timestamp":    st.Timestamp,
	}
	if errMsg != nil {
		event["error_message"] = *errMsg
	}
	if err := s.publisher.Publish(ctx, notify.StatusSubject(status), notify.EventMessageStatus, event); err != nil {
		s.logger.WithError(err).Warn("Failed to publish status event")
	}
	return true, nil
}

// NormalizeMessage maps a provider message onto a client response record.
// Unrecognized kinds keep their type and store the raw message as content.
func NormalizeMessage(msg *types.InboundMessage, contacts []types.Contact, receivedAt time.Time) *models.ClientResponse {
	record := &models.ClientResponse{
		PhoneNumber:       msg.From,
		MessageType:       msg.Type,
		Wamid:             models.StringPtr(msg.ID),
		TimestampReceived: parseTimestamp(msg.Timestamp, receivedAt),
		ClientName:        contactName(contacts, msg.From),
		Metadata:          rawMessage(msg),
	}
	if msg.Context != nil {
		record.ContextWamid = models.StringPtr(msg.Context.ID)
	}

	switch msg.Type {
	case types.MessageKindText:
		record.MessageType = models.MessageTypeText
		if msg.Text != nil {
			record.Content = models.StringPtr(msg.Text.Body)
		}

	case types.MessageKindImage:
		record.MessageType = models.MessageTypeImage
		if msg.Image != nil {
			record.ImageCaption = models.StringPtr(msg.Image.Caption)
		}

	case types.MessageKindButton:
		record.MessageType = models.MessageTypeButtonReply
		if msg.Button != nil {
			record.Content = models.StringPtr(msg.Button.Text)
			record.ButtonPayload = models.StringPtr(msg.Button.Payload)
		}

	case types.MessageKindInteractive:
		record.MessageType = models.MessageTypeInteractive
		if msg.Interactive != nil {
			reply := msg.Interactive.ButtonReply
			if reply == nil {
				reply = msg.Interactive.ListReply
			}
			if reply != nil {
				record.Content = models.StringPtr(reply.Title)
				record.ButtonPayload = models.StringPtr(reply.ID)
			}
		}

	default:
		if record.MessageType == "" {
			record.MessageType = "unknown"
		}
		content := string(record.Metadata)
		record.Content = &content
	}

	return record
}

func parseTimestamp(value string, fallback time.Time) time.Time {
	secs, err := strconv.ParseInt(value, 10, 64)
	if err != nil || secs <= 0 {
		return fallback.UTC()
	}
	return time.Unix(secs, 0).UTC()
}

func contactName(contacts []types.Contact, waID string) *string {
	for _, c := range contacts {
		if c.WaID == waID {
			return models.StringPtr(c.Profile.Name)
		}
	}
	return nil
}

func rawMessage(msg *types.InboundMessage) json.RawMessage {
	if len(msg.Raw) > 0 {
		return msg.Raw
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}

func maskedWamid(ctx context.Context, wamid string) string {
	if IsVerboseLogging(ctx) {
		return wamid
	}
	return privacy.MaskWamid(wamid)
}
