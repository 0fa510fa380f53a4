package types

import (
	"bytes"
	"encoding/json"
)

// WebhookPayload is the body of a provider notification delivery
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages and delivery statuses of one change.
// Messages stay raw so a single malformed message can be rejected on its own.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         ChangeMetadata    `json:"metadata"`
	Contacts         []Contact         `json:"contacts,omitempty"`
	Messages         []json.RawMessage `json:"messages,omitempty"`
	Statuses         []MessageStatus   `json:"statuses,omitempty"`
}

type ChangeMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type Contact struct {
	Profile ContactProfile `json:"profile"`
	WaID    string         `json:"wa_id"`
}

type ContactProfile struct {
	Name string `json:"name"`
}

// InboundMessage is a single message from a notification. Raw holds the
// message exactly as delivered.
type InboundMessage struct {
	From        string          `json:"from"`
	ID          string          `json:"id"`
	Timestamp   string          `json:"timestamp"`
	Type        string          `json:"type"`
	Text        *TextBody       `json:"text,omitempty"`
	Image       *MediaRef       `json:"image,omitempty"`
	Button      *ButtonContent  `json:"button,omitempty"`
	Interactive *Interactive    `json:"interactive,omitempty"`
	Context     *MessageContext `json:"context,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// ParseInboundMessage decodes one raw message and keeps a compacted copy of
// the original bytes in Raw
func ParseInboundMessage(raw json.RawMessage) (*InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, err
	}
	msg.Raw = compact.Bytes()
	return &msg, nil
}

type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// MediaRef references provider-hosted media by id
type MediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// ButtonContent is a quick-reply button press on a template message
type ButtonContent struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type Interactive struct {
	Type        string      `json:"type"`
	ButtonReply *ReplyTitle `json:"button_reply,omitempty"`
	ListReply   *ReplyTitle `json:"list_reply,omitempty"`
}

type ReplyTitle struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// MessageContext points at the message being replied to
type MessageContext struct {
	From string `json:"from,omitempty"`
	ID   string `json:"id"`
}

// MessageStatus is a delivery status update for an outbound message
type MessageStatus struct {
	ID          string        `json:"id"`
	Status      string        `json:"status"`
	Timestamp   string        `json:"timestamp"`
	RecipientID string        `json:"recipient_id"`
	Errors      []StatusError `json:"errors,omitempty"`
}

type StatusError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}
