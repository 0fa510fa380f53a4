package service

import (
	"context"
	"fmt"

	"wabadash/internal/models"
	"wabadash/pkg/whatsapp"
	"wabadash/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

// TemplateLister is the provider call used to list templates
type TemplateLister interface {
	ListTemplates(ctx context.Context, creds whatsapp.Credentials, limit int, after string) (*types.TemplateListResponse, error)
}

// TemplateService lists the templates registered for the business account
type TemplateService struct {
	client   TemplateLister
	settings SettingsSource
	graph    models.GraphConfig
	logger   *logrus.Logger
}

func NewTemplateService(client TemplateLister, settings SettingsSource, graph models.GraphConfig, logger *logrus.Logger) *TemplateService {
	return &TemplateService{
		client:   client,
		settings: settings,
		graph:    graph,
		logger:   logger,
	}
}

// List returns one page of templates. after is the cursor from the
// previous page's paging.cursors.after.
func (s *TemplateService) List(ctx context.Context, limit int, after string) (*types.TemplateListResponse, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	creds := Credentials(settings, s.graph)
	page := models.Page{Size: limit}.Normalize()

	resp, err := s.client.ListTemplates(ctx, creds, page.Size, after)
	if err != nil {
		endpoint := fmt.Sprintf("/%s/%s/message_templates", creds.APIVersion, templateAccount(creds))
		return nil, ProviderError(endpoint, creds.Timeout, err)
	}

	LogWithContext(ctx, s.logger).WithField(LogFieldCount, len(resp.Data)).Debug("Templates listed")
	return resp, nil
}

func templateAccount(creds whatsapp.Credentials) string {
	if creds.WABAID != "" {
		return creds.WABAID
	}
	return creds.BusinessID
}
