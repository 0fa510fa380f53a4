package database

import (
	"context"

	"wabadash/internal/models"
)

// SettingsStore reads and writes the singleton provider settings row
type SettingsStore interface {
	GetSettings(ctx context.Context) (*models.APISettings, error)
	SaveSettings(ctx context.Context, settings *models.APISettings) error
}

// ClientResponseStore persists normalized inbound messages
type ClientResponseStore interface {
	InsertClientResponse(ctx context.Context, resp *models.ClientResponse) error
	ClientResponseExistsByWamid(ctx context.Context, wamid string) (bool, error)
	GetClientResponse(ctx context.Context, id string) (*models.ClientResponse, error)
	ListClientResponses(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error)
	UpdateClientResponseFlags(ctx context.Context, id string, patch models.Flags) (*models.ClientResponse, error)
	DeleteClientResponse(ctx context.Context, id string) error
}

// APILogStore is append-only
type APILogStore interface {
	InsertAPILog(ctx context.Context, log *models.APILog) error
	ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error)
}

// SentMessageStore records outbound messages and their delivery status
type SentMessageStore interface {
	InsertSentMessage(ctx context.Context, msg *models.SentMessage) error
	UpdateSentMessageStatus(ctx context.Context, wamid, status string, errorMessage *string) (bool, error)
	ListSentMessages(ctx context.Context, page models.Page) (*models.SentMessagePage, error)
}

// Store is the full row store implemented by the SQLite and Postgres backends
type Store interface {
	SettingsStore
	ClientResponseStore
	APILogStore
	SentMessageStore
	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*Database)(nil)
