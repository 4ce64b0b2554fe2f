package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig holds OpenTelemetry tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// StorageConfig holds the artifact bucket settings.
type StorageConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint,omitempty"` // overridable for tests / local stacks
}

// QueueConfig holds the inbound message queue settings.
type QueueConfig struct {
	URL             string        `yaml:"url"`
	Region          string        `yaml:"region"`
	WaitTime        time.Duration `yaml:"wait_time"`
	MaxMessages     int32         `yaml:"max_messages"`
	VisibilityGrace time.Duration `yaml:"visibility_grace"`
}

// TwilioConfig holds outbound WhatsApp messaging settings.
type TwilioConfig struct {
	AccountSID     string   `yaml:"account_sid"`
	AuthToken      string   `yaml:"auth_token"`
	FromNumber     string   `yaml:"from_number"` // "whatsapp:+15551238886"
	BaseURL        string   `yaml:"base_url,omitempty"`
	AllowedNumbers []string `yaml:"allowed_numbers"` // webhook edge allow-list
}

// BreakerConfig configures the circuit breaker around LLM calls.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LLMConfig holds language-model provider settings.
type LLMConfig struct {
	Provider        string        `yaml:"provider"` // "openai" or "bedrock"
	Model           string        `yaml:"model"`
	TranscribeModel string        `yaml:"transcribe_model"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url,omitempty"`
	Region          string        `yaml:"region,omitempty"` // bedrock only
	Timeout         time.Duration `yaml:"timeout"`
	Breaker         BreakerConfig `yaml:"breaker"`
}

// LookupConfig holds tenant-resolution settings. The worker resolves via
// the customer-lookup Lambda; the lookup service itself serves from SQLite.
type LookupConfig struct {
	FunctionName string `yaml:"function_name"`
	Region       string `yaml:"region"`
	DBPath       string `yaml:"db_path"` // lookup service store
	Addr         string `yaml:"addr"`    // lookup service listen address
}

// DataAPIConfig holds read-side API settings.
type DataAPIConfig struct {
	Addr           string        `yaml:"addr"`
	APIKey         string        `yaml:"api_key,omitempty"` // empty = gateway handles auth
	RequestsPerMin int           `yaml:"requests_per_min"`
	Burst          int           `yaml:"burst"`
	PresignExpiry  time.Duration `yaml:"presign_expiry"`
}

// WebhookConfig holds inbound webhook edge settings.
type WebhookConfig struct {
	Addr      string `yaml:"addr"`
	PublicURL string `yaml:"public_url"` // externally visible URL, used in signature validation
}

// Config is the top-level application configuration.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
	Twilio  TwilioConfig  `yaml:"twilio"`
	LLM     LLMConfig     `yaml:"llm"`
	Lookup  LookupConfig  `yaml:"lookup"`
	DataAPI DataAPIConfig `yaml:"data_api"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer: TracerConfig{Enabled: false, Exporter: "noop"},
		Storage: StorageConfig{
			Region: "us-east-1",
		},
		Queue: QueueConfig{
			Region:      "us-east-1",
			WaitTime:    20 * time.Second,
			MaxMessages: 10,
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-5-nano",
			TranscribeModel: "whisper-1",
			Timeout:         60 * time.Second,
		},
		Lookup: LookupConfig{
			Region: "us-east-1",
			DBPath: "customers.db",
			Addr:   ":8081",
		},
		DataAPI: DataAPIConfig{
			Addr:           ":8080",
			RequestsPerMin: 120,
			Burst:          20,
			PresignExpiry:  5 * time.Minute,
		},
		Webhook: WebhookConfig{Addr: ":8082"},
	}
}

// Load reads the YAML config at path, applies env overrides, and validates.
// A missing file is not an error; env overrides alone may carry a deployment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides overlays FIELDNOTE_* environment variables onto cfg.
// Secrets (tokens, API keys) are expected to arrive this way in production.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FIELDNOTE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FIELDNOTE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FIELDNOTE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("FIELDNOTE_STORAGE_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("FIELDNOTE_STORAGE_REGION"); v != "" {
		cfg.Storage.Region = v
	}
	if v := os.Getenv("FIELDNOTE_QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("FIELDNOTE_TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("FIELDNOTE_TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("FIELDNOTE_TWILIO_FROM_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}
	if v := os.Getenv("FIELDNOTE_TWILIO_ALLOWED_NUMBERS"); v != "" {
		cfg.Twilio.AllowedNumbers = splitList(v)
	}
	if v := os.Getenv("FIELDNOTE_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("FIELDNOTE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("FIELDNOTE_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("FIELDNOTE_LOOKUP_FUNCTION_NAME"); v != "" {
		cfg.Lookup.FunctionName = v
	}
	if v := os.Getenv("FIELDNOTE_DATA_API_KEY"); v != "" {
		cfg.DataAPI.APIKey = v
	}
	if v := os.Getenv("FIELDNOTE_DATA_API_ADDR"); v != "" {
		cfg.DataAPI.Addr = v
	}
	if v := os.Getenv("FIELDNOTE_WEBHOOK_ADDR"); v != "" {
		cfg.Webhook.Addr = v
	}
	if v := os.Getenv("FIELDNOTE_WEBHOOK_PUBLIC_URL"); v != "" {
		cfg.Webhook.PublicURL = v
	}
	if v := os.Getenv("FIELDNOTE_DATA_API_REQUESTS_PER_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DataAPI.RequestsPerMin = n
		}
	}
}

// Validate checks cross-field consistency. Service-specific required
// fields (bucket, queue URL, credentials) are checked by the subcommand
// that needs them, not here, so that e.g. the lookup service can run
// without Twilio credentials.
func Validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "openai", "bedrock":
	default:
		return fmt.Errorf("llm.provider must be openai or bedrock, got %q", cfg.LLM.Provider)
	}
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger.level %q is not a valid level", cfg.Logger.Level)
	}
	if cfg.DataAPI.RequestsPerMin < 0 || cfg.DataAPI.Burst < 0 {
		return fmt.Errorf("data_api rate limit values must be non-negative")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
