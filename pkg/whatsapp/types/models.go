package types

import (
	"encoding/json"
)

// TemplateDefinition is the body posted to create a message template
type TemplateDefinition struct {
	Name       string              `json:"name" validate:"required,max=512,template_name"`
	Category   string              `json:"category" validate:"required,oneof=MARKETING UTILITY AUTHENTICATION"`
	Language   string              `json:"language" validate:"required,min=2,max=15"`
	Components []TemplateComponent `json:"components" validate:"required,min=1,dive"`
}

// HasBody reports whether the definition carries a BODY component
func (d *TemplateDefinition) HasBody() bool {
	for _, c := range d.Components {
		if c.Type == "BODY" {
			return true
		}
	}
	return false
}

type TemplateComponent struct {
	Type    string           `json:"type" validate:"required,oneof=HEADER BODY FOOTER BUTTONS"`
	Format  string           `json:"format,omitempty" validate:"omitempty,oneof=TEXT IMAGE VIDEO DOCUMENT LOCATION"`
	Text    string           `json:"text,omitempty" validate:"max=1024"`
	Example json.RawMessage  `json:"example,omitempty"`
	Buttons []TemplateButton `json:"buttons,omitempty" validate:"max=10,dive"`
}

type TemplateButton struct {
	Type        string `json:"type" validate:"required,oneof=QUICK_REPLY URL PHONE_NUMBER COPY_CODE"`
	Text        string `json:"text" validate:"required,max=25"`
	URL         string `json:"url,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

type CreateTemplateResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

// TemplateStatusResponse is the result of looking a template up by id
type TemplateStatusResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Status          string `json:"status"`
	Category        string `json:"category"`
	Language        string `json:"language"`
	RejectedReason  string `json:"rejected_reason,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Reason returns the provider's rejection reason, if any
func (r *TemplateStatusResponse) Reason() string {
	if r.RejectedReason != "" && r.RejectedReason != "NONE" {
		return r.RejectedReason
	}
	return r.RejectionReason
}

type TemplateListResponse struct {
	Data   []TemplateSummary `json:"data"`
	Paging *Paging           `json:"paging,omitempty"`
}

type TemplateSummary struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Status     string              `json:"status"`
	Category   string              `json:"category"`
	Language   string              `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type Paging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next,omitempty"`
}

// SendMessageRequest is the body posted to the messages endpoint
type SendMessageRequest struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *TextBody        `json:"text,omitempty"`
	Template         *TemplatePayload `json:"template,omitempty"`
}

type TemplatePayload struct {
	Name       string          `json:"name"`
	Language   LanguageCode    `json:"language"`
	Components []SendComponent `json:"components,omitempty"`
}

type LanguageCode struct {
	Code string `json:"code"`
}

type SendComponent struct {
	Type       string          `json:"type"`
	Parameters []SendParameter `json:"parameters"`
}

type SendParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type SendMessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the wamid of the first accepted message
func (r *SendMessageResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// MediaInfo is the metadata returned for a media id
type MediaInfo struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256"`
	FileSize int64  `json:"file_size"`
}

// DownloadedMedia holds fetched media bytes
type DownloadedMedia struct {
	Data        []byte
	ContentType string
	StatusCode  int
}

type PhoneNumberInfo struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
	QualityRating      string `json:"quality_rating"`
}

// ErrorResponse is the provider's error envelope
type ErrorResponse struct {
	Error *APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FBTraceID    string `json:"fbtrace_id,omitempty"`
}
