package service

// Logging Standards for wabadash
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldRequestID    = "request_id"
	LogFieldTraceID      = "trace_id"
	LogFieldWamid        = "wamid"
	LogFieldTemplateID   = "template_id"
	LogFieldTemplateName = "template_name"
	LogFieldSubmissionID = "submission_id"
	LogFieldResponseID   = "response_id"
	LogFieldPhone        = "phone"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageType = "message_type"
	LogFieldStatus      = "status"
	LogFieldProcessed   = "processed"
	LogFieldFailed      = "failed"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldHost       = "host"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Error and debugging
	LogFieldErrorCode = "error_code"
	LogFieldReason    = "reason"
	LogFieldAttempt   = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Raw webhook payloads (sanitized)
//   - Individual status checks that did not change anything
//   - Published events
//
// INFO: General information about application flow and key events.
//   - Application startup/shutdown
//   - Webhook batches processed
//   - Template submissions and terminal transitions
//   - Messages sent
//
// WARN: Something unexpected happened, but the application can continue.
//   - Media lookups that failed (record stored without image URL)
//   - Status checks that failed (monitor keeps polling)
//   - Event sink or broker failures
//   - Signature checks skipped
//
// ERROR: Error events that might still allow the application to continue.
//   - Failed inserts
//   - Provider errors on one-shot operations
//   - Signature mismatches
//
// FATAL: Only from main, when the store or listener cannot start.

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]" or "[Operation] completed successfully"
// Failed operations: "Failed to [operation]"
// Skipping operations: "Skipping [operation]: [reason]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldWamid:       privacy.MaskWamid(msg.ID),
//     LogFieldPhone:       privacy.MaskPhoneNumber(msg.From),
//     LogFieldMessageType: record.MessageType,
// }).Info("Stored inbound message")
//
// logger.WithFields(logrus.Fields{
//     LogFieldSubmissionID: sub.ID,
//     LogFieldTemplateID:   sub.TemplateID,
//     LogFieldStatus:       status,
// }).Debug("Template status check completed")
