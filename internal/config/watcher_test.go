package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wabadash/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestNewConfigWatcher(t *testing.T) {
	logger := quietLogger()
	watcher := NewConfigWatcher("/path/to/config.json", logger)

	assert.Equal(t, "/path/to/config.json", watcher.configPath)
	assert.Equal(t, logger, watcher.logger)
	assert.Empty(t, watcher.callbacks)
	assert.Nil(t, watcher.GetConfig())
}

func TestConfigWatcher_Start_MissingFile(t *testing.T) {
	watcher := NewConfigWatcher(filepath.Join(t.TempDir(), "missing.json"), quietLogger())
	assert.Error(t, watcher.Start(context.Background()))
}

func TestConfigWatcher_Start_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"driver": "mysql"}}`), 0600))

	watcher := NewConfigWatcher(path, quietLogger())
	assert.Error(t, watcher.Start(context.Background()))
}

func TestConfigWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "info"}`), 0600))

	watcher := NewConfigWatcher(path, quietLogger())

	reloaded := make(chan *models.Config, 8)
	watcher.OnConfigChange(func(cfg *models.Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Start(ctx) }()

	require.Eventually(t, func() bool { return watcher.GetConfig() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "info", watcher.GetConfig().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "warn"}`), 0600))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "warn", cfg.LogLevel)
	case <-time.After(3 * time.Second):
		t.Fatal("config change callback was not called")
	}
	assert.Equal(t, "warn", watcher.GetConfig().LogLevel)

	cancel()
	assert.NoError(t, <-done)
}

func TestConfigWatcher_CallbackPanicIsRecovered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0600))

	watcher := NewConfigWatcher(path, quietLogger())
	called := make(chan struct{}, 1)
	watcher.OnConfigChange(func(*models.Config) { panic("boom") })
	watcher.OnConfigChange(func(*models.Config) { called <- struct{}{} })

	watcher.reloadConfig()

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("second callback was not called")
	}
}

func TestApplyLogLevel(t *testing.T) {
	logger := quietLogger()
	apply := ApplyLogLevel(logger)

	apply(&models.Config{LogLevel: "error"})
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())

	apply(&models.Config{LogLevel: "nonsense"})
	assert.Equal(t, logrus.ErrorLevel, logger.GetLevel())
}
