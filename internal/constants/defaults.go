package constants

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxBodyBytes          = 1 << 20
)

// Provider defaults
const (
	DefaultGraphBaseURL   = "https://graph.facebook.com"
	DefaultAPIVersion     = "v23.0"
	DefaultHTTPTimeoutSec = 30
	DefaultVerifyToken    = "webhook_verify_token"
	SignatureHeader       = "X-Hub-Signature-256"
	SignaturePrefix       = "sha256="
	SubscribeMode         = "subscribe"
)

// Template monitor defaults
const (
	DefaultMonitorInitialDelaySec = 5
	DefaultMonitorPollIntervalSec = 30
	DefaultMonitorCheckTimeoutSec = 15
)

// Store defaults
const (
	DefaultDatabaseDriver        = "sqlite"
	DefaultDatabasePath          = "wabadash.db"
	DefaultDatabaseMaxConns      = 10
	DefaultDatabaseRetryAttempts = 3
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxSec         = 5
	DefaultPageSize              = 20
	MaxPageSize                  = 100
	DefaultSettingsCacheTTLSec   = 60
)

// Media proxy defaults
const (
	DefaultMediaMaxBytes = 16 * BytesPerMegabyte
	DefaultImageMIME     = "image/jpeg"
	BytesPerMegabyte     = 1024 * 1024
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Event subjects
const (
	DefaultNATSSubjectPrefix = "wabadash"
)

// Encryption at rest
const (
	EncryptionSalt         = "wabadash-settings-v1"
	EncryptionIterations   = 100000
	EncryptionKeySize      = 32
	EncryptionNonceSize    = 12
	EncryptedValuePrefix   = "enc:v1:"
	MinEncryptionSecretLen = 32
)

// Configuration
const (
	DefaultConfigPath         = "config.json"
	DefaultEnvironment        = "development"
	DefaultLogLevel           = "info"
	EnvPrefix                 = "WABADASH"
	MinJWTSecretLength        = 32
	DefaultJWTIssuer          = "wabadash"
	DefaultTracingServiceName = "wabadash"
	DefaultTracingSampleRate  = 1.0
)

// DefaultMediaAllowedHosts are the provider CDN hosts the media proxy may fetch
// from. Subdomains match.
var DefaultMediaAllowedHosts = []string{
	"lookaside.fbsbx.com",
	"graph.facebook.com",
	"scontent.whatsapp.net",
}
