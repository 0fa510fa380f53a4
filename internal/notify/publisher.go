package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wabadash/internal/constants"
	"wabadash/internal/metrics"
	"wabadash/internal/models"
	"wabadash/internal/tracing"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// Event types carried in the envelope
const (
	EventInboundResponse  = "inbound.response"
	EventMessageStatus    = "message.status"
	EventTemplateApproved = "template.approved"
	EventTemplateRejected = "template.rejected"
)

// Envelope wraps every published payload
type Envelope struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
	Data       any       `json:"data"`
}

// Publisher fans domain events out to subscribers. Implementations must be
// safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, subject, eventType string, data any) error
	Close()
}

// Conn is the subset of *nats.Conn the publisher uses
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	IsClosed() bool
}

// NATSPublisher publishes JSON envelopes to core NATS subjects under a prefix
type NATSPublisher struct {
	conn    Conn
	prefix  string
	logger  *logrus.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New returns a NATS publisher when cfg.URL is set and a no-op publisher otherwise
func New(cfg models.NATSConfig, logger *logrus.Logger, m *metrics.Metrics) (Publisher, error) {
	if cfg.URL == "" {
		logger.Info("NATS URL not configured, event publishing disabled")
		return NoopPublisher{}, nil
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(constants.DefaultNATSSubjectPrefix),
		nats.Timeout(5*time.Second),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			if err := c.LastError(); err != nil {
				logger.WithError(err).Warn("NATS connection closed")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.WithField("subject_prefix", cfg.SubjectPrefix).Info("Connected to NATS")
	return NewNATSPublisher(nc, cfg.SubjectPrefix, logger, m), nil
}

func NewNATSPublisher(conn Conn, prefix string, logger *logrus.Logger, m *metrics.Metrics) *NATSPublisher {
	if prefix == "" {
		prefix = constants.DefaultNATSSubjectPrefix
	}
	return &NATSPublisher{
		conn:    conn,
		prefix:  strings.TrimSuffix(prefix, "."),
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Publish sends data wrapped in an Envelope to <prefix>.<subject>
func (p *NATSPublisher) Publish(ctx context.Context, subject, eventType string, data any) error {
	payload, err := json.Marshal(Envelope{
		Type:       eventType,
		OccurredAt: p.now().UTC(),
		RequestID:  tracing.RequestID(ctx),
		Data:       data,
	})
	if err != nil {
		p.metrics.RecordEvent("encode_error")
		return fmt.Errorf("failed to encode event: %w", err)
	}

	full := p.prefix + "." + subject
	if err := p.conn.Publish(full, payload); err != nil {
		p.metrics.RecordEvent("error")
		return fmt.Errorf("failed to publish to %s: %w", full, err)
	}

	p.metrics.RecordEvent("published")
	p.logger.WithFields(logrus.Fields{
		"subject": full,
		"event":   eventType,
	}).Debug("Event published")
	return nil
}

// Close drains pending messages before closing the connection
func (p *NATSPublisher) Close() {
	if p.conn == nil || p.conn.IsClosed() {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.WithError(err).Warn("Failed to drain NATS connection")
	}
}

// NoopPublisher discards every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, string, any) error { return nil }

func (NoopPublisher) Close() {}

// ResponseSubject is the subject for a stored inbound message of the given type
func ResponseSubject(messageType string) string {
	return "responses." + token(messageType)
}

// StatusSubject is the subject for a delivery status update
func StatusSubject(status string) string {
	return "status." + token(status)
}

// TemplateSubject is the subject for a template reaching a terminal status
func TemplateSubject(status string) string {
	return "template." + token(status)
}

// token makes s safe to use as a single subject token
func token(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
