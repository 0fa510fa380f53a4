package whatsapp

import (
	"context"

	"wabadash/pkg/whatsapp/types"
)

// API is the provider surface used by the services
type API interface {
	CreateTemplate(ctx context.Context, creds Credentials, def *types.TemplateDefinition) (*types.CreateTemplateResponse, error)
	GetTemplateStatus(ctx context.Context, creds Credentials, templateID string) (*types.TemplateStatusResponse, error)
	ListTemplates(ctx context.Context, creds Credentials, limit int, after string) (*types.TemplateListResponse, error)
	SendText(ctx context.Context, creds Credentials, to, body string) (*types.SendMessageResponse, error)
	SendTemplate(ctx context.Context, creds Credentials, to string, tmpl *types.TemplatePayload) (*types.SendMessageResponse, error)
	SendMessage(ctx context.Context, creds Credentials, req *types.SendMessageRequest) (*types.SendMessageResponse, error)
	GetMediaURL(ctx context.Context, creds Credentials, mediaID string) (*types.MediaInfo, error)
	DownloadMedia(ctx context.Context, creds Credentials, mediaURL string, maxBytes int64) (*types.DownloadedMedia, error)
	GetPhoneNumber(ctx context.Context, creds Credentials) (*types.PhoneNumberInfo, error)
}

var _ API = (*Client)(nil)
