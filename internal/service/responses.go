package service

import (
	"context"
	"time"

	"wabadash/internal/database"
	"wabadash/internal/models"

	"github.com/sirupsen/logrus"
)

// ResponseService lists stored client responses and applies user actions
// to them. Only the flag bag is ever changed.
type ResponseService struct {
	store  database.ClientResponseStore
	logger *logrus.Logger
	now    func() time.Time
}

func NewResponseService(store database.ClientResponseStore, logger *logrus.Logger) *ResponseService {
	return &ResponseService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *ResponseService) List(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error) {
	filter.Page = filter.Page.Normalize()
	return s.store.ListClientResponses(ctx, filter)
}

func (s *ResponseService) Get(ctx context.Context, id string) (*models.ClientResponse, error) {
	return s.store.GetClientResponse(ctx, id)
}

// Archive marks the response archived and stamps the time
func (s *ResponseService) Archive(ctx context.Context, id string) (*models.ClientResponse, error) {
	updated, err := s.store.UpdateClientResponseFlags(ctx, id, models.Flags{
		models.FlagArchived:   true,
		models.FlagArchivedAt: s.timestamp(),
	})
	if err != nil {
		return nil, err
	}

	LogWithContext(ctx, s.logger).WithField(LogFieldResponseID, id).Info("Client response archived")
	return updated, nil
}

// ToggleFlag flips the flagged marker. Unflagging clears the timestamp.
func (s *ResponseService) ToggleFlag(ctx context.Context, id string) (*models.ClientResponse, error) {
	current, err := s.store.GetClientResponse(ctx, id)
	if err != nil {
		return nil, err
	}

	flagged := !current.Flags.IsFlagged()
	patch := models.Flags{models.FlagFlagged: flagged, models.FlagFlaggedAt: nil}
	if flagged {
		patch[models.FlagFlaggedAt] = s.timestamp()
	}

	updated, err := s.store.UpdateClientResponseFlags(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	LogWithContext(ctx, s.logger).WithFields(logrus.Fields{
		LogFieldResponseID: id,
		"flagged":          flagged,
	}).Info("Client response flag toggled")
	return updated, nil
}

func (s *ResponseService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteClientResponse(ctx, id); err != nil {
		return err
	}
	LogWithContext(ctx, s.logger).WithField(LogFieldResponseID, id).Info("Client response deleted")
	return nil
}

func (s *ResponseService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
