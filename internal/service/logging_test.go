package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"wabadash/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsVerboseLogging(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected bool
	}{
		{"verbose enabled", context.WithValue(context.Background(), VerboseContextKey, true), true},
		{"verbose disabled", context.WithValue(context.Background(), VerboseContextKey, false), false},
		{"plain string key ignored", context.WithValue(context.Background(), "verbose", true), false},
		{"no verbose in context", context.Background(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsVerboseLogging(tt.ctx))
		})
	}
}

func TestLogWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := tracing.WithRequestID(context.Background(), "req_abc")
	ctx = tracing.WithTraceID(ctx, "trace_xyz")
	LogWithContext(ctx, logger).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "req_abc", line[LogFieldRequestID])
	assert.Equal(t, "trace_xyz", line[LogFieldTraceID])
}

func TestLogWithContext_NoIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogWithContext(context.Background(), logger).Info("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.NotContains(t, line, LogFieldRequestID)
	assert.NotContains(t, line, LogFieldTraceID)
}

func TestMessageFields(t *testing.T) {
	wamid := "wamid.HBgMNTUxMTk4NzY1NDMyMRUCABIYFjNFQjA"
	phone := "5511987654321"

	masked := messageFields(context.Background(), wamid, phone, "text")
	assert.Equal(t, "*********4321", masked[LogFieldPhone])
	assert.NotEqual(t, wamid, masked[LogFieldWamid])
	assert.Equal(t, "text", masked[LogFieldMessageType])

	verbose := context.WithValue(context.Background(), VerboseContextKey, true)
	raw := messageFields(verbose, wamid, phone, "text")
	assert.Equal(t, phone, raw[LogFieldPhone])
	assert.Equal(t, wamid, raw[LogFieldWamid])
}

func TestPhoneField(t *testing.T) {
	assert.Equal(t, "*********4321", phoneField(context.Background(), "5511987654321"))
	verbose := context.WithValue(context.Background(), VerboseContextKey, true)
	assert.Equal(t, "5511987654321", phoneField(verbose, "5511987654321"))
}
