package models

// Config holds the application configuration
type Config struct {
	Environment string         `json:"environment" mapstructure:"environment"`
	LogLevel    string         `json:"log_level" mapstructure:"log_level"`
	Server      ServerConfig   `json:"server" mapstructure:"server"`
	Database    DatabaseConfig `json:"database" mapstructure:"database"`
	Webhook     WebhookConfig  `json:"webhook" mapstructure:"webhook"`
	Monitor     MonitorConfig  `json:"monitor" mapstructure:"monitor"`
	Graph       GraphConfig    `json:"graph" mapstructure:"graph"`
	Auth        AuthConfig     `json:"auth" mapstructure:"auth"`
	NATS        NATSConfig     `json:"nats" mapstructure:"nats"`
	Tracing     TracingConfig  `json:"tracing" mapstructure:"tracing"`
	Settings    SettingsConfig `json:"settings" mapstructure:"settings"`
	Media       MediaConfig    `json:"media" mapstructure:"media"`
	Retry       RetryConfig    `json:"retry" mapstructure:"retry"`
}

// IsProduction reports whether the service runs with production safeguards
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            int   `json:"port" mapstructure:"port"`
	ReadTimeoutSec  int   `json:"read_timeout_sec" mapstructure:"read_timeout_sec"`
	WriteTimeoutSec int   `json:"write_timeout_sec" mapstructure:"write_timeout_sec"`
	IdleTimeoutSec  int   `json:"idle_timeout_sec" mapstructure:"idle_timeout_sec"`
	MaxBodyBytes    int64 `json:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DatabaseConfig selects and configures the row store
type DatabaseConfig struct {
	Driver           string `json:"driver" mapstructure:"driver"`
	Path             string `json:"path" mapstructure:"path"`
	DSN              string `json:"-" mapstructure:"dsn"`
	MaxConns         int    `json:"max_conns" mapstructure:"max_conns"`
	EncryptionSecret string `json:"-" mapstructure:"encryption_secret"`
}

// WebhookConfig controls inbound callback handling
type WebhookConfig struct {
	VerifyToken      string `json:"-" mapstructure:"verify_token"`
	RequireSignature bool   `json:"require_signature" mapstructure:"require_signature"`
	DedupeByWamid    bool   `json:"dedupe_by_wamid" mapstructure:"dedupe_by_wamid"`
}

// MonitorConfig controls template approval polling
type MonitorConfig struct {
	InitialDelaySec int `json:"initial_delay_sec" mapstructure:"initial_delay_sec"`
	PollIntervalSec int `json:"poll_interval_sec" mapstructure:"poll_interval_sec"`
	CheckTimeoutSec int `json:"check_timeout_sec" mapstructure:"check_timeout_sec"`
}

// GraphConfig holds provider API defaults used when settings leave them blank
type GraphConfig struct {
	BaseURL           string `json:"base_url" mapstructure:"base_url"`
	DefaultAPIVersion string `json:"default_api_version" mapstructure:"default_api_version"`
	DefaultTimeoutSec int    `json:"default_timeout_sec" mapstructure:"default_timeout_sec"`
}

// AuthConfig holds admin API token settings
type AuthConfig struct {
	JWTSecret string `json:"-" mapstructure:"jwt_secret"`
	Issuer    string `json:"issuer" mapstructure:"issuer"`
}

// NATSConfig enables event publishing when URL is set
type NATSConfig struct {
	URL           string `json:"url" mapstructure:"url"`
	SubjectPrefix string `json:"subject_prefix" mapstructure:"subject_prefix"`
}

// TracingConfig configures OpenTelemetry export
type TracingConfig struct {
	Enabled      bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName  string  `json:"service_name" mapstructure:"service_name"`
	OTLPEndpoint string  `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	SampleRate   float64 `json:"sample_rate" mapstructure:"sample_rate"`
	UseStdout    bool    `json:"use_stdout" mapstructure:"use_stdout"`
}

// SettingsConfig controls caching of the stored provider settings
type SettingsConfig struct {
	CacheTTLSec int `json:"cache_ttl_sec" mapstructure:"cache_ttl_sec"`
}

// MediaConfig restricts the media download proxy
type MediaConfig struct {
	AllowedHosts []string `json:"allowed_hosts" mapstructure:"allowed_hosts"`
	MaxBytes     int64    `json:"max_bytes" mapstructure:"max_bytes"`
}

// RetryConfig holds startup retry settings for the store connection
type RetryConfig struct {
	InitialBackoffMs int `json:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `json:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxAttempts      int `json:"max_attempts" mapstructure:"max_attempts"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
