package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wabadash/internal/config"
	"wabadash/internal/constants"
	"wabadash/internal/database"
	"wabadash/internal/database/postgres"
	"wabadash/internal/metrics"
	"wabadash/internal/middleware"
	"wabadash/internal/models"
	"wabadash/internal/monitor"
	"wabadash/internal/notify"
	"wabadash/internal/retry"
	"wabadash/internal/service"
	"wabadash/internal/tracing"
	"wabadash/pkg/media"
	"wabadash/pkg/whatsapp"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes unmasked phone numbers and message ids)")
	configPath = flag.String("config", constants.DefaultConfigPath, "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
	issueToken = flag.String("issue-token", "", "Print an admin API token for this subject and exit")
	tokenRole  = flag.String("token-role", middleware.RoleAdmin, "Role claim for -issue-token")
	tokenTTL   = flag.Duration("token-ttl", 24*time.Hour, "Lifetime of the token printed by -issue-token")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wabadash %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *issueToken != "" {
		return printToken(cfg, logger)
	}

	configureLogLevel(logger, cfg)

	logger.WithFields(logrus.Fields{
		"version":     Version,
		"build":       BuildTime,
		"commit":      GitCommit,
		"environment": cfg.Environment,
	}).Info("Starting wabadash")

	tracingManager := tracing.NewManager(cfg.Tracing, Version, cfg.Environment, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	m := metrics.New()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := notify.New(cfg.NATS, logger, m)
	if err != nil {
		logger.WithError(err).Warn("Event publishing disabled")
		publisher = notify.NoopPublisher{}
	}
	defer publisher.Close()

	client := whatsapp.NewClient(
		whatsapp.WithBaseURL(cfg.Graph.BaseURL),
		whatsapp.WithObserver(m.ObserveGraphCall),
		whatsapp.WithDownloadRedirectCheck(media.RedirectCheck(cfg.Media)),
	)

	settings := service.NewSettingsProvider(store, time.Duration(cfg.Settings.CacheTTLSec)*time.Second)
	events := service.NewSafeRecorder(service.MultiRecorder{
		service.NewStoreRecorder(store),
		service.NewLogRecorder(logger),
	}, logger)

	templateMonitor := monitor.NewTemplateMonitor(client, settings, events, publisher, m, logger,
		monitor.OptionsFromConfig(cfg.Monitor, cfg.Graph))

	server := NewServer(cfg, Dependencies{
		Webhook: service.NewWebhookService(store, client, events, publisher, m, logger, service.WebhookOptions{
			VerifyToken: cfg.Webhook.VerifyToken,
			Dedupe:      cfg.Webhook.DedupeByWamid,
			Graph:       cfg.Graph,
		}),
		Settings:  settings,
		Admin:     service.NewSettingsService(settings, client, events, cfg.Graph, logger),
		Messaging: service.NewMessagingService(client, store, settings, events, cfg.Graph, logger),
		Responses: service.NewResponseService(store, logger),
		Templates: service.NewTemplateService(client, settings, cfg.Graph, logger),
		Monitor:   templateMonitor,
		Media:     media.NewProxy(client, service.NewCredentialResolver(settings, cfg.Graph), cfg.Media, logger),
		History:   store,
		Auth:      middleware.NewAuth(cfg.Auth, logger),
		Metrics:   m,
	}, logger, *verbose)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if _, err := os.Stat(*configPath); err == nil {
		watcher := config.NewConfigWatcher(*configPath, logger)
		if !*verbose {
			watcher.OnConfigChange(config.ApplyLogLevel(logger))
		}
		g.Go(func() error {
			if err := watcher.Start(gctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
		if err := templateMonitor.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Template monitor did not stop in time")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error(err)
		return err
	}

	logger.Info("Server shutdown completed")
	return nil
}

func configureLogLevel(logger *logrus.Logger, cfg *models.Config) {
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// openStore connects to the configured backend, retrying with backoff while
// the database comes up
func openStore(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (database.Store, error) {
	encryptor, err := database.NewEncryptor(cfg.Database.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}
	if !encryptor.Enabled() {
		logger.Warn("Settings secrets are stored unencrypted: database.encryption_secret is not set")
	}

	backoff := retry.NewBackoff(backoffConfig(cfg.Retry))

	var store database.Store
	err = backoff.Retry(ctx, func() error {
		var openErr error
		switch cfg.Database.Driver {
		case "postgres":
			store, openErr = postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, encryptor, logger)
		default:
			store, openErr = database.New(ctx, cfg.Database.Path, encryptor)
		}
		if openErr != nil {
			logger.WithError(openErr).WithField("driver", cfg.Database.Driver).Warn("Failed to open store")
		}
		return openErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}

	logger.WithField("driver", cfg.Database.Driver).Info("Store ready")
	return store, nil
}

func backoffConfig(rc models.RetryConfig) retry.BackoffConfig {
	bc := retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultBackoffMaxSec) * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	}
	if rc.InitialBackoffMs > 0 {
		bc.InitialDelay = time.Duration(rc.InitialBackoffMs) * time.Millisecond
	}
	if rc.MaxBackoffMs > 0 {
		bc.MaxDelay = time.Duration(rc.MaxBackoffMs) * time.Millisecond
	}
	if rc.MaxAttempts > 0 {
		bc.MaxAttempts = rc.MaxAttempts
	}
	return bc
}

func printToken(cfg *models.Config, logger *logrus.Logger) error {
	auth := middleware.NewAuth(cfg.Auth, logger)
	token, err := auth.IssueToken(*issueToken, *tokenRole, *tokenTTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}
	fmt.Println(token)
	return nil
}
