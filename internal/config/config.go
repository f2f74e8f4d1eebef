// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds server configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the JSON API listens on (e.g. :8081).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN; empty runs the server on in-memory repositories.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL (redis://host:6379/0); empty keeps rate limits and challenge nonces in memory.
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "720h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) used for OTP hashes; default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMSLocalAPIKey is the API key for SMS Local. Empty with OTPReturnToClient off means codes cannot be delivered.
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`
	// OTPReturnToClient when true enables dev OTP mode: no SMS, the code is readable at GET /v1/dev/otp.
	// Must not be true when Env is production.
	OTPReturnToClient bool   `mapstructure:"OTP_RETURN_TO_CLIENT"`
	Env               string `mapstructure:"APP_ENV"`

	// OTPTTL is how long a sent code stays confirmable.
	OTPTTL time.Duration `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the number of wrong codes after which a handle is dropped.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPSendLimit is the number of codes a phone number (or client IP) may request per OTPSendWindow.
	OTPSendLimit  int           `mapstructure:"OTP_SEND_LIMIT"`
	OTPSendWindow time.Duration `mapstructure:"OTP_SEND_WINDOW"`
	// ChallengeTTL is the lifetime of a rendered challenge token.
	ChallengeTTL time.Duration `mapstructure:"CHALLENGE_TTL"`
	// PhoneDefaultRegion is the ISO region used to parse numbers without a country prefix.
	PhoneDefaultRegion string `mapstructure:"PHONE_DEFAULT_REGION"`
	// CORSAllowedOrigins is a comma-separated list of browser origins allowed to call the API.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// Telemetry (optional). When Kafka brokers are set, auth events are published to Kafka.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL      string `mapstructure:"LOKI_URL"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Contact relay (EmailJS-compatible). Without a URL, contact messages are only logged.
	ContactRelayURL   string `mapstructure:"CONTACT_RELAY_URL"`
	ContactServiceID  string `mapstructure:"CONTACT_SERVICE_ID"`
	ContactTemplateID string `mapstructure:"CONTACT_TEMPLATE_ID"`
	ContactPublicKey  string `mapstructure:"CONTACT_PUBLIC_KEY"`
	ContactToEmail    string `mapstructure:"CONTACT_TO_EMAIL"`

	// LogLevel is the zap level (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := newViper()

	v.SetDefault("HTTP_ADDR", ":8081")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "portfolyze-auth")
	v.SetDefault("JWT_AUDIENCE", "portfolyze-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "720h") // 30d
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://app.smslocal.in/api/smsapi")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_SEND_LIMIT", 5)
	v.SetDefault("OTP_SEND_WINDOW", "1h")
	v.SetDefault("CHALLENGE_TTL", "2m")
	v.SetDefault("PHONE_DEFAULT_REGION", "IN")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "portfolyze-auth-events")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "portfolyze-telemetry-worker")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("CONTACT_RELAY_URL", "")
	v.SetDefault("CONTACT_SERVICE_ID", "")
	v.SetDefault("CONTACT_TEMPLATE_ID", "")
	v.SetDefault("CONTACT_PUBLIC_KEY", "")
	v.SetDefault("CONTACT_TO_EMAIL", "")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.OTPTTL <= 0 {
		return nil, errors.New("config: OTP_TTL must be positive")
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.OTPSendLimit < 1 || cfg.OTPSendWindow <= 0 {
		return nil, errors.New("config: OTP_SEND_LIMIT and OTP_SEND_WINDOW must be positive")
	}
	if cfg.ChallengeTTL <= 0 {
		return nil, errors.New("config: CHALLENGE_TTL must be positive")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 720h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}

// DevOTP reports whether codes are kept for the dev endpoint instead of being sent by SMS.
func (c *Config) DevOTP() bool {
	return c != nil && c.OTPReturnToClient && c.Env != "production"
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TelemetryKafkaBrokers)
}

// AllowedOrigins returns the CORS origins list.
func (c *Config) AllowedOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ClientConfig configures the portfolyze CLI.
type ClientConfig struct {
	// ServerURL is the base URL of the auth server (e.g. http://localhost:8081).
	ServerURL string `mapstructure:"PORTFOLYZE_URL"`
	// SessionFile stores the refresh token and identity between runs; empty disables persistence.
	SessionFile        string `mapstructure:"PORTFOLYZE_SESSION_FILE"`
	PhoneDefaultRegion string `mapstructure:"PHONE_DEFAULT_REGION"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
}

// LoadClient reads the CLI configuration. defaultSessionFile is used when PORTFOLYZE_SESSION_FILE is unset.
func LoadClient(defaultSessionFile string) (*ClientConfig, error) {
	v := newViper()

	v.SetDefault("PORTFOLYZE_URL", "http://localhost:8081")
	v.SetDefault("PORTFOLYZE_SESSION_FILE", defaultSessionFile)
	v.SetDefault("PHONE_DEFAULT_REGION", "IN")
	v.SetDefault("LOG_LEVEL", "warn")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("config: PORTFOLYZE_URL must be set")
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return &cfg, nil
}
