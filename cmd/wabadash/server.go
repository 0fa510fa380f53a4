package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"wabadash/internal/constants"
	"wabadash/internal/metrics"
	"wabadash/internal/middleware"
	"wabadash/internal/models"
	"wabadash/internal/monitor"
	"wabadash/internal/service"
	"wabadash/pkg/media"
	"wabadash/pkg/whatsapp/types"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// WebhookIngester handles provider callbacks
type WebhookIngester interface {
	VerifySubscription(mode, token string) bool
	Reject(ctx context.Context, outcome string, status int, err error)
	Ingest(ctx context.Context, payload *types.WebhookPayload, settings *models.APISettings) service.IngestResult
}

type SettingsAPI interface {
	Public(ctx context.Context) (*models.PublicSettings, error)
	Update(ctx context.Context, in models.APISettings) (*models.PublicSettings, error)
	Test(ctx context.Context) (*types.PhoneNumberInfo, error)
}

type MessagingAPI interface {
	SendText(ctx context.Context, req service.SendTextRequest) (*service.SendResult, error)
	SendTemplate(ctx context.Context, req service.SendTemplateRequest) (*service.SendResult, error)
}

type ResponsesAPI interface {
	List(ctx context.Context, filter models.ClientResponseFilter) (*models.ClientResponsePage, error)
	Get(ctx context.Context, id string) (*models.ClientResponse, error)
	Archive(ctx context.Context, id string) (*models.ClientResponse, error)
	ToggleFlag(ctx context.Context, id string) (*models.ClientResponse, error)
	Delete(ctx context.Context, id string) error
}

type TemplatesAPI interface {
	List(ctx context.Context, limit int, after string) (*types.TemplateListResponse, error)
}

// SubmissionMonitor tracks template submissions until review completes
type SubmissionMonitor interface {
	Submit(ctx context.Context, def types.TemplateDefinition) (*monitor.Handle, error)
	Get(id string) (monitor.Snapshot, error)
	List() []monitor.Snapshot
	Stop(id string) error
	Forget(id string) error
}

type MediaFetcher interface {
	Fetch(ctx context.Context, mediaURL string) (*media.Result, error)
}

// HistoryStore serves the read-only audit listings and the health probe
type HistoryStore interface {
	ListAPILogs(ctx context.Context, filter models.APILogFilter) (*models.APILogPage, error)
	ListSentMessages(ctx context.Context, page models.Page) (*models.SentMessagePage, error)
	Ping(ctx context.Context) error
}

// Dependencies are the components the HTTP layer routes to
type Dependencies struct {
	Webhook   WebhookIngester
	Settings  service.SettingsSource
	Admin     SettingsAPI
	Messaging MessagingAPI
	Responses ResponsesAPI
	Templates TemplatesAPI
	Monitor   SubmissionMonitor
	Media     MediaFetcher
	History   HistoryStore
	Auth      *middleware.Auth
	Metrics   *metrics.Metrics
}

type Server struct {
	cfg     *models.Config
	router  *mux.Router
	logger  *logrus.Logger
	deps    Dependencies
	verbose bool
	server  *http.Server
}

func NewServer(cfg *models.Config, deps Dependencies, logger *logrus.Logger, verbose bool) *Server {
	if deps.Auth == nil {
		deps.Auth = middleware.NewAuth(cfg.Auth, logger)
	}
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		logger:  logger,
		deps:    deps,
		verbose: verbose,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.deps.Metrics, s.verbose))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)

	// Provider callbacks; the handler answers 405 itself
	s.router.HandleFunc("/webhook/whatsapp", s.handleWhatsAppWebhook())

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.deps.Auth.Authenticate)

	api.HandleFunc("/media/download", s.handleMediaDownload()).Methods(http.MethodPost)

	api.HandleFunc("/messages/text", s.handleSendText()).Methods(http.MethodPost)
	api.HandleFunc("/messages/template", s.handleSendTemplate()).Methods(http.MethodPost)

	api.HandleFunc("/responses", s.handleListResponses()).Methods(http.MethodGet)
	api.HandleFunc("/responses/{id}", s.handleGetResponse()).Methods(http.MethodGet)
	api.HandleFunc("/responses/{id}", s.handleDeleteResponse()).Methods(http.MethodDelete)
	api.HandleFunc("/responses/{id}/archive", s.handleArchiveResponse()).Methods(http.MethodPost)
	api.HandleFunc("/responses/{id}/flag", s.handleToggleFlag()).Methods(http.MethodPost)

	api.HandleFunc("/templates", s.handleListTemplates()).Methods(http.MethodGet)
	api.HandleFunc("/templates", s.handleSubmitTemplate()).Methods(http.MethodPost)
	api.HandleFunc("/templates/submissions", s.handleListSubmissions()).Methods(http.MethodGet)
	api.HandleFunc("/templates/submissions/{id}", s.handleGetSubmission()).Methods(http.MethodGet)
	api.HandleFunc("/templates/submissions/{id}", s.handleStopSubmission()).Methods(http.MethodDelete)

	api.HandleFunc("/settings", s.handleGetSettings()).Methods(http.MethodGet)
	admin := api.NewRoute().Subrouter()
	admin.Use(s.deps.Auth.RequireRole(middleware.RoleAdmin))
	admin.HandleFunc("/settings", s.handleUpdateSettings()).Methods(http.MethodPut)
	admin.HandleFunc("/settings/test", s.handleTestSettings()).Methods(http.MethodPost)

	api.HandleFunc("/logs", s.handleListLogs()).Methods(http.MethodGet)
	api.HandleFunc("/sent-messages", s.handleListSentMessages()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	port := s.cfg.Server.Port
	if port == 0 {
		port = constants.DefaultServerPort
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  seconds(s.cfg.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec),
		WriteTimeout: seconds(s.cfg.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec),
		IdleTimeout:  seconds(s.cfg.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec),
	}

	s.logger.WithField("port", port).Info("Starting HTTP server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.Server.MaxBodyBytes > 0 {
		return s.cfg.Server.MaxBodyBytes
	}
	return constants.DefaultMaxBodyBytes
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.deps.History.Ping(ctx); err != nil {
			service.LogWithContext(ctx, s.logger).WithError(err).Warn("Health check failed: store unreachable")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
