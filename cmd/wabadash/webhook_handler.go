package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"wabadash/internal/constants"
	apperrors "wabadash/internal/errors"
	"wabadash/internal/service"
	"wabadash/pkg/whatsapp/types"
)

type webhookAck struct {
	Success           bool `json:"success"`
	ProcessedMessages int  `json:"processed_messages"`
}

func (s *Server) handleWhatsAppWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.verifyWebhook(w, r)
		case http.MethodPost:
			s.receiveWebhook(w, r)
		default:
			s.deps.Webhook.Reject(r.Context(), service.WebhookOutcomeMethod, http.StatusMethodNotAllowed, nil)
			w.Header().Set("Allow", "GET, POST")
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{
				"success": false,
				"error":   "Method not allowed",
			})
		}
	}
}

// verifyWebhook answers the subscription handshake with the challenge
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !s.deps.Webhook.VerifySubscription(q.Get("hub.mode"), q.Get("hub.verify_token")) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (s *Server) receiveWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "Failed to read request body"
		if errors.As(err, &tooLarge) {
			msg = "Request body too large"
		}
		s.rejectWebhook(w, r, service.WebhookOutcomeMalformed, apperrors.NewInputError(msg, err))
		return
	}

	settings, err := s.deps.Settings.Get(ctx)
	if err != nil {
		s.rejectWebhook(w, r, service.WebhookOutcomeSettings,
			apperrors.Wrap(err, apperrors.ErrCodeMissingConfig, "failed to load API settings").
				WithUserMessage("API settings not configured"))
		return
	}

	signature := r.Header.Get(constants.SignatureHeader)
	switch {
	case settings.WebhookSecret != "" && signature != "":
		if err := verifySignature(body, signature, settings.WebhookSecret); err != nil {
			s.rejectWebhook(w, r, service.WebhookOutcomeInvalidSignature, apperrors.NewSignatureError(err.Error()))
			return
		}
	case s.cfg.Webhook.RequireSignature && settings.WebhookSecret == "":
		s.rejectWebhook(w, r, service.WebhookOutcomeSettings,
			apperrors.NewMissingConfigError("webhook_secret", "Webhook secret not configured"))
		return
	case s.cfg.Webhook.RequireSignature:
		s.rejectWebhook(w, r, service.WebhookOutcomeMissingSignature,
			apperrors.NewSignatureError("missing "+constants.SignatureHeader+" header"))
		return
	default:
		service.LogWithContext(ctx, s.logger).
			WithField("has_secret", settings.WebhookSecret != "").
			Warn("Skipping webhook signature check: secret or header not present")
	}

	var payload types.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.rejectWebhook(w, r, service.WebhookOutcomeMalformed, apperrors.NewInputError("Invalid JSON payload", err))
		return
	}

	result := s.deps.Webhook.Ingest(ctx, &payload, settings)
	writeJSON(w, http.StatusOK, webhookAck{Success: true, ProcessedMessages: result.Processed})
}

func (s *Server) rejectWebhook(w http.ResponseWriter, r *http.Request, outcome string, err error) {
	status := apperrors.HTTPStatusCode(err)
	s.deps.Webhook.Reject(r.Context(), outcome, status, err)
	s.writeError(w, r, err)
}
