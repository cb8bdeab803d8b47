package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	SMS       SMSConfig       `yaml:"sms"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "0.0.0.0"
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the configured lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds Redis settings. An empty Addr disables Redis; locks then
// fall back to PostgreSQL advisory locks and stats are not cached.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig holds JWT and optional Google sign-in settings
type AuthConfig struct {
	SecretKey                string `yaml:"secret_key"`
	AccessTokenExpireMinutes int    `yaml:"access_token_expire_minutes"`
	RefreshTokenExpireDays   int    `yaml:"refresh_token_expire_days"`
	GoogleClientID           string `yaml:"google_client_id"`
	GoogleClientSecret       string `yaml:"google_client_secret"`
	GoogleRedirectURL        string `yaml:"google_redirect_url"`
}

// AccessTTL returns the access token lifetime
func (c AuthConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime
func (c AuthConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}

// GoogleEnabled reports whether Google sign-in is configured
func (c AuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// SMSConfig holds the gateway credentials and dispatch settings
type SMSConfig struct {
	// Enabled narrows the registry to these providers (in this order).
	// Empty means every provider with credentials.
	Enabled []string `yaml:"enabled"`
	// Required makes startup fail when no provider is configured.
	Required       bool `yaml:"required"`
	RetryAttempts  int  `yaml:"retry_attempts"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	// SendLockMinutes bounds how long a send may hold its cross-instance lock.
	SendLockMinutes int `yaml:"send_lock_minutes"`

	BulkSMS        BulkSMSConfig        `yaml:"bulksms"`
	Clickatell     ClickatellConfig     `yaml:"clickatell"`
	SMSPortal      SMSPortalConfig      `yaml:"smsportal"`
	Twilio         TwilioConfig         `yaml:"twilio"`
	AfricasTalking AfricasTalkingConfig `yaml:"africastalking"`
	WinSMS         WinSMSConfig         `yaml:"winsms"`
}

// Timeout returns the default gateway timeout as a duration
func (c SMSConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SendLockTTL returns the send lock lifetime
func (c SMSConfig) SendLockTTL() time.Duration {
	return time.Duration(c.SendLockMinutes) * time.Minute
}

// BulkSMSConfig holds BulkSMS credentials
type BulkSMSConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// URL is the messages endpoint, not the API root.
	URL string `yaml:"api_uri"`
}

// ClickatellConfig holds Clickatell credentials
type ClickatellConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// SMSPortalConfig holds SMSPortal credentials
type SMSPortalConfig struct {
	APIKey   string `yaml:"api_key"`
	ClientID string `yaml:"client_id"`
	TestMode bool   `yaml:"test_mode"`
	BaseURL  string `yaml:"base_url"`
}

// TwilioConfig holds Twilio credentials
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	BaseURL    string `yaml:"base_url"`
}

// AfricasTalkingConfig holds Africa's Talking credentials
type AfricasTalkingConfig struct {
	APIKey   string `yaml:"api_key"`
	Username string `yaml:"username"`
	SenderID string `yaml:"sender_id"`
	BaseURL  string `yaml:"base_url"`
}

// WinSMSConfig holds WinSMS credentials
type WinSMSConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// StorageConfig selects where contact exports are archived
type StorageConfig struct {
	Type          string `yaml:"type"` // "local" or "aws"
	LocalPath     string `yaml:"local_path"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	DynamoDBTable string `yaml:"dynamodb_table"`
	AWSRegion     string `yaml:"aws_region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled      bool              `yaml:"enabled"`
	ServiceName  string            `yaml:"service_name"`
	Environment  string            `yaml:"environment"`
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	OTLPHeaders  map[string]string `yaml:"otlp_headers"`
	SampleRate   float64           `yaml:"sample_rate"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true)
func (c LoggingConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Auth.AccessTokenExpireMinutes == 0 {
		cfg.Auth.AccessTokenExpireMinutes = 30
	}
	if cfg.Auth.RefreshTokenExpireDays == 0 {
		cfg.Auth.RefreshTokenExpireDays = 7
	}
	if cfg.SMS.TimeoutSeconds == 0 {
		cfg.SMS.TimeoutSeconds = 30
	}
	if cfg.SMS.SendLockMinutes == 0 {
		cfg.SMS.SendLockMinutes = 15
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/exports"
	}
	if cfg.Storage.S3Prefix == "" {
		cfg.Storage.S3Prefix = "exports/"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "commhub"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "development"
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4318"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in production. A missing YAML
// file is not an error: defaults plus environment are enough to run.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		cfg.applyDefaults()
	} else if err != nil {
		return nil, err
	}

	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Server.Port, "PORT")
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	setString(&cfg.Auth.SecretKey, "SECRET_KEY")
	setInt(&cfg.Auth.AccessTokenExpireMinutes, "ACCESS_TOKEN_EXPIRE_MINUTES")
	setString(&cfg.Auth.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.Auth.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.Auth.GoogleRedirectURL, "GOOGLE_REDIRECT_URL")

	// Gateway credentials use the variable names the providers document.
	setString(&cfg.SMS.BulkSMS.Username, "BULKSMS_USERNAME")
	setString(&cfg.SMS.BulkSMS.Password, "BULKSMS_PASSWORD")
	setString(&cfg.SMS.BulkSMS.URL, "BULKSMS_API_URI")
	setString(&cfg.SMS.Clickatell.APIKey, "CLICKATEL_API_KEY")
	setString(&cfg.SMS.SMSPortal.APIKey, "SMSPORTAL_API_KEY")
	setString(&cfg.SMS.SMSPortal.ClientID, "SMSPORTAL_CLIENT_ID")
	setBool(&cfg.SMS.SMSPortal.TestMode, "SMSPORTAL_TESTMODE")
	setString(&cfg.SMS.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&cfg.SMS.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&cfg.SMS.Twilio.FromNumber, "TWILIO_FROM_NUMBER")
	setString(&cfg.SMS.AfricasTalking.APIKey, "AFRICASTALKING_API_KEY")
	setString(&cfg.SMS.AfricasTalking.Username, "AFRICASTALKING_USERNAME")
	setString(&cfg.SMS.AfricasTalking.SenderID, "AFRICASTALKING_SENDER_ID")
	setString(&cfg.SMS.WinSMS.APIKey, "WINSMS_API_KEY")
	if v := os.Getenv("SMS_PROVIDERS"); v != "" {
		cfg.SMS.Enabled = splitList(v)
	}
	setBool(&cfg.SMS.Required, "SMS_REQUIRED")
	setInt(&cfg.SMS.RetryAttempts, "SMS_RETRY_ATTEMPTS")

	setString(&cfg.Storage.Type, "STORAGE_TYPE")
	setString(&cfg.Storage.S3Bucket, "EXPORT_S3_BUCKET")
	setString(&cfg.Storage.DynamoDBTable, "EXPORT_DYNAMODB_TABLE")
	setString(&cfg.Storage.AWSRegion, "AWS_REGION")

	setBool(&cfg.Telemetry.Enabled, "OTEL_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
