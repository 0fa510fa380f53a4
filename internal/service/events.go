package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wabadash/internal/database"
	"wabadash/internal/models"
	"wabadash/internal/tracing"

	"github.com/sirupsen/logrus"
)

const eventWriteTimeout = 5 * time.Second

// Event is one audit entry. Bodies are encoded to JSON when stored; a zero
// ResponseStatus is stored as NULL.
type Event struct {
	Endpoint       string
	Method         string
	RequestBody    any
	ResponseBody   any
	ResponseStatus int
	ErrorMessage   string
}

// EventSink stores events and reports failures
type EventSink interface {
	Record(ctx context.Context, ev Event) error
}

// EventRecorder is what components record audit events through. It never
// fails the caller.
type EventRecorder interface {
	Record(ctx context.Context, ev Event)
}

// StoreRecorder writes events as API log rows
type StoreRecorder struct {
	store database.APILogStore
}

func NewStoreRecorder(store database.APILogStore) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) Record(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(tracing.Detach(ctx), eventWriteTimeout)
	defer cancel()

	entry := &models.APILog{
		Endpoint:      ev.Endpoint,
		RequestMethod: ev.Method,
		RequestBody:   encodeBody(ev.RequestBody),
		ResponseBody:  encodeBody(ev.ResponseBody),
	}
	if ev.ResponseStatus != 0 {
		status := ev.ResponseStatus
		entry.ResponseStatus = &status
	}
	entry.ErrorMessage = models.StringPtr(ev.ErrorMessage)

	if err := r.store.InsertAPILog(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Endpoint, err)
	}
	return nil
}

// LogRecorder writes events to the application log at debug level
type LogRecorder struct {
	logger *logrus.Logger
}

func NewLogRecorder(logger *logrus.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) error {
	LogWithContext(ctx, r.logger).WithFields(logrus.Fields{
		LogFieldEndpoint:   ev.Endpoint,
		LogFieldMethod:     ev.Method,
		LogFieldStatusCode: ev.ResponseStatus,
		"error_message":    ev.ErrorMessage,
	}).Debug("Audit event")
	return nil
}

// MultiRecorder sends each event to every sink and joins their errors
type MultiRecorder []EventSink

func (m MultiRecorder) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SafeRecorder adapts a sink so that its failures and panics are logged
// and never reach the caller
type SafeRecorder struct {
	sink   EventSink
	logger *logrus.Logger
}

func NewSafeRecorder(sink EventSink, logger *logrus.Logger) *SafeRecorder {
	return &SafeRecorder{sink: sink, logger: logger}
}

func (r *SafeRecorder) Record(ctx context.Context, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			LogWithContext(ctx, r.logger).WithFields(logrus.Fields{
				LogFieldEndpoint: ev.Endpoint,
				"panic":          p,
			}).Error("Audit event sink panicked")
		}
	}()

	if err := r.sink.Record(ctx, ev); err != nil {
		LogWithContext(ctx, r.logger).WithError(err).
			WithField(LogFieldEndpoint, ev.Endpoint).
			Warn("Failed to record audit event")
	}
}

// NopRecorder discards events
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) {}

// encodeBody converts an event body to JSON. Raw JSON passes through and
// unencodable values are replaced by an error object.
func encodeBody(v any) json.RawMessage {
	switch body := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		if len(body) == 0 {
			return nil
		}
		if json.Valid(body) {
			return body
		}
		v = string(body)
	case []byte:
		if len(body) == 0 {
			return nil
		}
		if json.Valid(body) {
			return json.RawMessage(body)
		}
		v = string(body)
	}

	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(map[string]string{"error": "unencodable body"})
	}
	return data
}
