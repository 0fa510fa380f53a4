package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"wabadash/internal/constants"
	"wabadash/internal/models"
	"wabadash/internal/security"
	"wabadash/internal/validation"
)

var (
	ErrUnknownDriver       = models.ConfigError{Message: "database driver must be sqlite or postgres"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrMissingDSN          = models.ConfigError{Message: "missing database dsn for postgres driver"}
	ErrMissingVerifyToken  = models.ConfigError{Message: "missing webhook verify token"}
	ErrInvalidLogLevel     = models.ConfigError{Message: "log_level must be one of debug, info, warn, error"}
	ErrInvalidSampleRate   = models.ConfigError{Message: "tracing sample_rate must be between 0 and 1"}
	ErrInvalidEnvironment  = models.ConfigError{Message: "environment must be development or production"}
	ErrShortEncryptionKey  = models.ConfigError{Message: fmt.Sprintf("database encryption_secret must be at least %d characters long", constants.MinEncryptionSecretLen)}
	ErrMissingGraphBaseURL = models.ConfigError{Message: "missing graph base_url"}
)

// LoadConfig reads path (optional; defaults apply when it does not exist),
// a .env file if present, and WABADASH_* environment overrides.
func LoadConfig(path string) (*models.Config, error) {
	if path != "" {
		if err := security.ValidateFilePath(path); err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if !v.IsSet("webhook.require_signature") {
		cfg.Webhook.RequireSignature = cfg.IsProduction()
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	if err := validateSecurity(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("environment", constants.DefaultEnvironment)
	v.SetDefault("log_level", constants.DefaultLogLevel)

	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.read_timeout_sec", constants.DefaultServerReadTimeoutSec)
	v.SetDefault("server.write_timeout_sec", constants.DefaultServerWriteTimeoutSec)
	v.SetDefault("server.idle_timeout_sec", constants.DefaultServerIdleTimeoutSec)
	v.SetDefault("server.max_body_bytes", constants.DefaultMaxBodyBytes)

	v.SetDefault("database.driver", constants.DefaultDatabaseDriver)
	v.SetDefault("database.path", constants.DefaultDatabasePath)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", constants.DefaultDatabaseMaxConns)
	v.SetDefault("database.encryption_secret", "")

	v.SetDefault("webhook.verify_token", constants.DefaultVerifyToken)
	v.SetDefault("webhook.dedupe_by_wamid", false)
	// No default: when unset it follows the environment.
	_ = v.BindEnv("webhook.require_signature")

	v.SetDefault("monitor.initial_delay_sec", constants.DefaultMonitorInitialDelaySec)
	v.SetDefault("monitor.poll_interval_sec", constants.DefaultMonitorPollIntervalSec)
	v.SetDefault("monitor.check_timeout_sec", constants.DefaultMonitorCheckTimeoutSec)

	v.SetDefault("graph.base_url", constants.DefaultGraphBaseURL)
	v.SetDefault("graph.default_api_version", constants.DefaultAPIVersion)
	v.SetDefault("graph.default_timeout_sec", constants.DefaultHTTPTimeoutSec)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", constants.DefaultJWTIssuer)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", constants.DefaultNATSSubjectPrefix)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.DefaultTracingServiceName)
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.sample_rate", constants.DefaultTracingSampleRate)
	v.SetDefault("tracing.use_stdout", false)

	v.SetDefault("settings.cache_ttl_sec", constants.DefaultSettingsCacheTTLSec)

	v.SetDefault("media.allowed_hosts", constants.DefaultMediaAllowedHosts)
	v.SetDefault("media.max_bytes", constants.DefaultMediaMaxBytes)

	v.SetDefault("retry.initial_backoff_ms", constants.DefaultBackoffInitialMs)
	v.SetDefault("retry.max_backoff_ms", constants.DefaultBackoffMaxSec*1000)
	v.SetDefault("retry.max_attempts", constants.DefaultDatabaseRetryAttempts)

	return v
}

func validate(c *models.Config) error {
	if c.Environment != "development" && c.Environment != "production" {
		return ErrInvalidEnvironment
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return ErrInvalidLogLevel
	}

	if err := validation.ValidateNumericRange(c.Server.Port, "server port", 1, 65535); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return ErrMissingDBPath
		}
	case "postgres":
		if c.Database.DSN == "" {
			return ErrMissingDSN
		}
	default:
		return ErrUnknownDriver
	}
	if c.Database.EncryptionSecret != "" && len(c.Database.EncryptionSecret) < constants.MinEncryptionSecretLen {
		return ErrShortEncryptionKey
	}

	if c.Webhook.VerifyToken == "" {
		return ErrMissingVerifyToken
	}

	for field, value := range map[string]int{
		"monitor initial_delay_sec": c.Monitor.InitialDelaySec,
		"monitor poll_interval_sec": c.Monitor.PollIntervalSec,
		"monitor check_timeout_sec": c.Monitor.CheckTimeoutSec,
		"graph default_timeout_sec": c.Graph.DefaultTimeoutSec,
		"server read_timeout_sec":   c.Server.ReadTimeoutSec,
		"server write_timeout_sec":  c.Server.WriteTimeoutSec,
	} {
		if err := validation.ValidateTimeout(value, field); err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}

	if c.Graph.BaseURL == "" {
		return ErrMissingGraphBaseURL
	}
	if c.Graph.DefaultAPIVersion == "" {
		c.Graph.DefaultAPIVersion = constants.DefaultAPIVersion
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return ErrInvalidSampleRate
	}

	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if c.Media.MaxBytes <= 0 {
		c.Media.MaxBytes = constants.DefaultMediaMaxBytes
	}
	if len(c.Media.AllowedHosts) == 0 {
		c.Media.AllowedHosts = append([]string(nil), constants.DefaultMediaAllowedHosts...)
	}
	if c.Settings.CacheTTLSec < 0 {
		c.Settings.CacheTTLSec = 0
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = constants.DefaultNATSSubjectPrefix
	}

	return nil
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < constants.MinJWTSecretLength {
			return models.ConfigError{Message: fmt.Sprintf("auth jwt_secret must be at least %d characters long in production (set WABADASH_AUTH_JWT_SECRET)", constants.MinJWTSecretLength)}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}

		if c.Webhook.VerifyToken == constants.DefaultVerifyToken {
			fmt.Fprintf(os.Stderr, "WARNING: webhook verify token is the built-in default. Set WABADASH_WEBHOOK_VERIFY_TOKEN.\n")
		}
		return nil
	}

	if c.Auth.JWTSecret == "" {
		fmt.Fprintf(os.Stderr, "WARNING: auth jwt_secret not set; the /api routes are unauthenticated. Set WABADASH_AUTH_JWT_SECRET.\n")
	}
	if !c.Webhook.RequireSignature {
		fmt.Fprintf(os.Stderr, "WARNING: webhook signatures are not enforced outside production.\n")
	}

	return nil
}
