package service

import (
	"context"

	"wabadash/internal/privacy"
	"wabadash/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext returns an entry carrying the request and trace ids from ctx
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	entry := logrus.NewEntry(logger)
	if id := tracing.RequestID(ctx); id != "" {
		entry = entry.WithField(LogFieldRequestID, id)
	}
	if id := tracing.TraceID(ctx); id != "" {
		entry = entry.WithField(LogFieldTraceID, id)
	}
	return entry
}

// messageFields describes an inbound message for logging. Identifiers are
// masked unless verbose logging is on.
func messageFields(ctx context.Context, wamid, phone, messageType string) logrus.Fields {
	if IsVerboseLogging(ctx) {
		return logrus.Fields{
			LogFieldWamid:       wamid,
			LogFieldPhone:       phone,
			LogFieldMessageType: messageType,
		}
	}
	return logrus.Fields{
		LogFieldWamid:       privacy.MaskWamid(wamid),
		LogFieldPhone:       privacy.MaskPhoneNumber(phone),
		LogFieldMessageType: messageType,
	}
}

// phoneField masks phone unless verbose logging is on
func phoneField(ctx context.Context, phone string) string {
	if IsVerboseLogging(ctx) {
		return phone
	}
	return privacy.MaskPhoneNumber(phone)
}
