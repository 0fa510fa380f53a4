package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wabadash/internal/constants"
	"wabadash/internal/retry"
)

var writeBackoff = retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultBackoffMaxSec) * time.Second,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// withRetry runs a write, retrying transient SQLite lock errors
func withRetry(ctx context.Context, operationName string, operation func() error) error {
	err := retry.NewBackoff(writeBackoff).RetryWithPredicate(ctx, operation, IsRetryableError)
	if err != nil {
		return fmt.Errorf("%s: %w", operationName, err)
	}
	return nil
}

// IsRetryableError reports whether a store error is transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := err.Error()
	for _, transient := range []string{
		"database is locked",
		"database table is locked",
		"SQLITE_BUSY",
		"disk I/O error",
		"connection refused",
		"connection reset",
	} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
