package models

import (
	"encoding/json"
	"time"
)

// Sent message statuses. Delivery callbacks overwrite SENT with the
// provider's upper-cased status (DELIVERED, READ, FAILED).
const (
	SentStatusSent   = "SENT"
	SentStatusFailed = "FAILED"

	CustomMessageTemplate = "custom_message"
)

// SentMessage records an outbound message
type SentMessage struct {
	ID           string          `json:"id"`
	TemplateName string          `json:"template_name"`
	PhoneNumber  string          `json:"phone_number"`
	Status       string          `json:"status"`
	Wamid        *string         `json:"wamid"`
	Parameters   json.RawMessage `json:"parameters"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SentMessagePage is one page of sent messages plus the total count
type SentMessagePage struct {
	Items    []*SentMessage `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}
