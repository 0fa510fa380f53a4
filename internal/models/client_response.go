package models

import (
	"encoding/json"
	"time"
)

// Normalized message kinds. Unrecognized provider kinds keep their raw type.
const (
	MessageTypeText        = "text"
	MessageTypeImage       = "image"
	MessageTypeButtonReply = "button_reply"
	MessageTypeInteractive = "interactive"
)

// Flag keys stored in ClientResponse.Flags
const (
	FlagArchived   = "archived"
	FlagArchivedAt = "archived_at"
	FlagFlagged    = "flagged"
	FlagFlaggedAt  = "flagged_at"
)

// ClientResponse is one normalized inbound message. Only Flags changes after
// the row is created.
type ClientResponse struct {
	ID                string          `json:"id"`
	PhoneNumber       string          `json:"phone_number"`
	MessageType       string          `json:"message_type"`
	Content           *string         `json:"content"`
	ImageURL          *string         `json:"image_url"`
	ImageCaption      *string         `json:"image_caption"`
	ButtonPayload     *string         `json:"button_payload"`
	Wamid             *string         `json:"wamid"`
	TimestampReceived time.Time       `json:"timestamp_received"`
	ContextWamid      *string         `json:"context_wamid"`
	ClientName        *string         `json:"client_name"`
	Metadata          json.RawMessage `json:"metadata"`
	Flags             Flags           `json:"flags"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Flags is the free-form key/value bag for user-applied markers
type Flags map[string]any

func (f Flags) boolValue(key string) bool {
	v, ok := f[key].(bool)
	return ok && v
}

func (f Flags) IsArchived() bool { return f.boolValue(FlagArchived) }

func (f Flags) IsFlagged() bool { return f.boolValue(FlagFlagged) }

// Merge returns a copy of f with patch applied. Nil values remove keys.
func (f Flags) Merge(patch Flags) Flags {
	out := make(Flags, len(f)+len(patch))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// ClientResponseFilter narrows a client response listing
type ClientResponseFilter struct {
	MessageType     string
	Search          string
	IncludeArchived bool
	FlaggedOnly     bool
	Page            Page
}

// ClientResponsePage is one page of client responses plus the total match count
type ClientResponsePage struct {
	Items    []*ClientResponse `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// StringPtr returns nil for empty strings so optional columns stay NULL
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
