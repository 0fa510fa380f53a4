package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"wabadash/internal/models"
)

// ConfigWatcher reloads the configuration file when it changes on disk
type ConfigWatcher struct {
	configPath string
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the file, watches it through viper and blocks until ctx is
// done. Changes that arrive after ctx is done are ignored.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if _, err := os.Stat(cw.configPath); err != nil {
		return err
	}

	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	v := viper.New()
	v.SetConfigFile(cw.configPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", cw.configPath, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		cw.logger.WithField("op", e.Op.String()).Debug("Configuration file changed")
		cw.reloadConfig()
	})
	v.WatchConfig()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")
	<-ctx.Done()
	cw.logger.Info("Configuration watcher stopping")
	return nil
}

// GetConfig returns the current configuration (thread-safe)
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback to be called when configuration changes
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")

	for _, callback := range callbacks {
		go func(cb func(*models.Config)) {
			defer func() {
				if r := recover(); r != nil {
					cw.logger.WithField("panic", r).Error("Config change callback panicked")
				}
			}()
			cb(newConfig)
		}(callback)
	}

	cw.logConfigChanges(oldConfig, newConfig)
}

// logConfigChanges logs notable configuration changes. Only the log level
// takes effect without a restart.
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Monitor.PollIntervalSec != new.Monitor.PollIntervalSec {
		cw.logger.WithFields(logrus.Fields{
			"old": old.Monitor.PollIntervalSec,
			"new": new.Monitor.PollIntervalSec,
		}).Info("Template monitor poll interval changed")
	}

	if old.Server.Port != new.Server.Port || old.Database.Driver != new.Database.Driver {
		cw.logger.Warn("Server or database settings changed; restart required to apply")
	}
}

// ApplyLogLevel returns a callback that updates logger's level on reload
func ApplyLogLevel(logger *logrus.Logger) func(*models.Config) {
	return func(cfg *models.Config) {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.WithError(err).Warn("Ignoring invalid log level from reloaded configuration")
			return
		}
		logger.SetLevel(level)
	}
}
