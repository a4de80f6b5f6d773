// Package config handles loading and validation of application configuration
// from environment variables and an optional configuration file.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
	"go.uber.org/zap"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds process-level configuration.
type ServerConfig struct {
	Environment Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	MetricsPort string      `mapstructure:"METRICS_PORT" yaml:"metrics_port"`
	Version     string      `mapstructure:"VERSION" yaml:"version"`
}

// DiscordConfig holds the chat message source settings.
type DiscordConfig struct {
	Token         string `mapstructure:"TOKEN" yaml:"token"`
	CommandPrefix string `mapstructure:"COMMAND_PREFIX" yaml:"command_prefix"`
	// AllowedChannels restricts intake to these channel ids. Empty allows all.
	AllowedChannels []string `mapstructure:"ALLOWED_CHANNELS" yaml:"allowed_channels"`
}

// ExtractionConfig holds the OpenAI-compatible extraction service settings.
type ExtractionConfig struct {
	BaseURL        string  `mapstructure:"BASE_URL" yaml:"base_url"`
	APIKey         string  `mapstructure:"API_KEY" yaml:"api_key"`
	Model          string  `mapstructure:"MODEL" yaml:"model"`
	Temperature    float64 `mapstructure:"TEMPERATURE" yaml:"temperature"`
	MaxTokens      int     `mapstructure:"MAX_TOKENS" yaml:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// OCRConfig holds the vision service and attachment download settings.
type OCRConfig struct {
	// Provider is "openai" or "gemini".
	Provider           string `mapstructure:"PROVIDER" yaml:"provider"`
	Model              string `mapstructure:"MODEL" yaml:"model"`
	APIKey             string `mapstructure:"API_KEY" yaml:"api_key"`
	BaseURL            string `mapstructure:"BASE_URL" yaml:"base_url"`
	TimeoutSeconds     int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
	MaxAttachmentBytes int64  `mapstructure:"MAX_ATTACHMENT_BYTES" yaml:"max_attachment_bytes"`
	DownloadDir        string `mapstructure:"DOWNLOAD_DIR" yaml:"download_dir"`
}

// SheetsConfig holds Google Sheets access settings.
type SheetsConfig struct {
	CredentialsFile string `mapstructure:"CREDENTIALS_FILE" yaml:"credentials_file"`
	TimeoutSeconds  int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// ClickUpConfig holds task tracker settings. Field ids are the ClickUp custom
// field ids of the buying list.
type ClickUpConfig struct {
	Enabled         bool   `mapstructure:"ENABLED" yaml:"enabled"`
	APIToken        string `mapstructure:"API_TOKEN" yaml:"api_token"`
	BaseURL         string `mapstructure:"BASE_URL" yaml:"base_url"`
	ListID          string `mapstructure:"LIST_ID" yaml:"list_id"`
	DateFieldID     string `mapstructure:"DATE_FIELD_ID" yaml:"date_field_id"`
	QuantityFieldID string `mapstructure:"QUANTITY_FIELD_ID" yaml:"quantity_field_id"`
	TeamFieldID     string `mapstructure:"TEAM_FIELD_ID" yaml:"team_field_id"`
	TimeoutSeconds  int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// PipelineConfig holds the completeness policy and stage timeouts.
type PipelineConfig struct {
	// RequiredFields are counted by the completeness policy.
	RequiredFields []string `mapstructure:"REQUIRED_FIELDS" yaml:"required_fields"`
	// MaxMissing is the number of required fields a record may lack and still be accepted.
	MaxMissing          int    `mapstructure:"MAX_MISSING" yaml:"max_missing"`
	FetchTimeoutSeconds int    `mapstructure:"FETCH_TIMEOUT_SECONDS" yaml:"fetch_timeout_seconds"`
	NotifyTimeoutSecs   int    `mapstructure:"NOTIFY_TIMEOUT_SECONDS" yaml:"notify_timeout_seconds"`
	RoutingTablesPath   string `mapstructure:"ROUTING_TABLES_PATH" yaml:"routing_tables_path"`
}

// RequiredFieldList resolves RequiredFields to schema fields.
func (p PipelineConfig) RequiredFieldList() ([]types.Field, error) {
	fields := make([]types.Field, 0, len(p.RequiredFields))
	seen := make(map[types.Field]bool)
	for _, name := range p.RequiredFields {
		f, ok := types.ParseField(name)
		if !ok {
			return nil, fmt.Errorf("unknown required field %q", name)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// WorkerPoolConfig holds configuration for the submission worker pool.
type WorkerPoolConfig struct {
	// MaxWorkers is the number of concurrent pipeline runs (default: 8)
	MaxWorkers int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	// QueueSize is the maximum number of pending submissions (default: 100)
	QueueSize int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	// ShutdownTimeoutSeconds is the max time to wait for in-flight runs during shutdown (default: 60)
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
	// JobTimeoutSeconds bounds one pipeline run end to end (default: 180)
	JobTimeoutSeconds int `mapstructure:"JOB_TIMEOUT_SECONDS" yaml:"job_timeout_seconds"`
}

// RedisConfig holds Redis connection details for dedup and throttling.
type RedisConfig struct {
	Enabled              bool   `mapstructure:"ENABLED" yaml:"enabled"`
	Address              string `mapstructure:"ADDRESS" yaml:"address"`
	Password             string `mapstructure:"PASSWORD" yaml:"password"`
	DB                   int    `mapstructure:"DB" yaml:"db"`
	UseTLS               bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	DedupTTLHours        int    `mapstructure:"DEDUP_TTL_HOURS" yaml:"dedup_ttl_hours"`
	SubmissionsPerMinute int    `mapstructure:"SUBMISSIONS_PER_MINUTE" yaml:"submissions_per_minute"`
}

// DatabaseConfig holds the outcome ledger connection.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"ENABLED" yaml:"enabled"`
	URL      string `mapstructure:"URL" yaml:"url"`
	MaxConns int32  `mapstructure:"MAX_CONNS" yaml:"max_conns"`
}

// EmailConfig holds operator alert settings.
type EmailConfig struct {
	Enabled       bool     `mapstructure:"ENABLED" yaml:"enabled"`
	ResendAPIKey  string   `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
	FromAddress   string   `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName      string   `mapstructure:"FROM_NAME" yaml:"from_name"`
	OpsRecipients []string `mapstructure:"OPS_RECIPIENTS" yaml:"ops_recipients"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server     ServerConfig     `mapstructure:"SERVER" yaml:"server"`
	Discord    DiscordConfig    `mapstructure:"DISCORD" yaml:"discord"`
	Extraction ExtractionConfig `mapstructure:"EXTRACTION" yaml:"extraction"`
	OCR        OCRConfig        `mapstructure:"OCR" yaml:"ocr"`
	Sheets     SheetsConfig     `mapstructure:"SHEETS" yaml:"sheets"`
	ClickUp    ClickUpConfig    `mapstructure:"CLICKUP" yaml:"clickup"`
	Pipeline   PipelineConfig   `mapstructure:"PIPELINE" yaml:"pipeline"`
	WorkerPool WorkerPoolConfig `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
	Redis      RedisConfig      `mapstructure:"REDIS" yaml:"redis"`
	Database   DatabaseConfig   `mapstructure:"DATABASE" yaml:"database"`
	Email      EmailConfig      `mapstructure:"EMAIL" yaml:"email"`
}

func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.METRICS_PORT", "9090")
	v.SetDefault("SERVER.VERSION", "dev")
	v.SetDefault("DISCORD.COMMAND_PREFIX", "!logorder")
	v.SetDefault("DISCORD.ALLOWED_CHANNELS", []string{})
	v.SetDefault("EXTRACTION.BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("EXTRACTION.MODEL", "gpt-4o")
	v.SetDefault("EXTRACTION.TEMPERATURE", 0.1)
	v.SetDefault("EXTRACTION.MAX_TOKENS", 1000)
	v.SetDefault("EXTRACTION.TIMEOUT_SECONDS", 60)
	v.SetDefault("OCR.PROVIDER", "openai")
	v.SetDefault("OCR.MODEL", "gpt-4o-mini")
	v.SetDefault("OCR.BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OCR.TIMEOUT_SECONDS", 45)
	v.SetDefault("OCR.MAX_ATTACHMENT_BYTES", 10<<20)
	v.SetDefault("OCR.DOWNLOAD_DIR", "downloaded_images")
	v.SetDefault("SHEETS.CREDENTIALS_FILE", "screenshotbot-key.json")
	v.SetDefault("SHEETS.TIMEOUT_SECONDS", 20)
	v.SetDefault("CLICKUP.ENABLED", false)
	v.SetDefault("CLICKUP.BASE_URL", "https://api.clickup.com/api/v2")
	v.SetDefault("CLICKUP.DATE_FIELD_ID", "93467127-e21f-45e5-b90e-052c2f9cf332")
	v.SetDefault("CLICKUP.QUANTITY_FIELD_ID", "abc0669f-685b-45ab-a7d7-c2f2f7573119")
	v.SetDefault("CLICKUP.TEAM_FIELD_ID", "c67a5727-32c8-4638-80a0-f3b1f4de7a70")
	v.SetDefault("CLICKUP.TIMEOUT_SECONDS", 10)
	requiredNames := make([]string, len(types.DefaultRequiredFields))
	for i, f := range types.DefaultRequiredFields {
		requiredNames[i] = string(f)
	}
	v.SetDefault("PIPELINE.REQUIRED_FIELDS", requiredNames)
	v.SetDefault("PIPELINE.MAX_MISSING", 3)
	v.SetDefault("PIPELINE.FETCH_TIMEOUT_SECONDS", 20)
	v.SetDefault("PIPELINE.NOTIFY_TIMEOUT_SECONDS", 10)
	v.SetDefault("PIPELINE.ROUTING_TABLES_PATH", "")
	v.SetDefault("WORKER_POOL.MAX_WORKERS", 8)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 100)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 60)
	v.SetDefault("WORKER_POOL.JOB_TIMEOUT_SECONDS", 180)
	v.SetDefault("REDIS.ENABLED", false)
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.DEDUP_TTL_HOURS", 24)
	v.SetDefault("REDIS.SUBMISSIONS_PER_MINUTE", 10)
	v.SetDefault("DATABASE.ENABLED", false)
	v.SetDefault("DATABASE.URL", "")
	v.SetDefault("DATABASE.MAX_CONNS", 4)
	v.SetDefault("EMAIL.ENABLED", false)
	v.SetDefault("EMAIL.FROM_NAME", "Order Bot")
	v.SetDefault("EMAIL.OPS_RECIPIENTS", []string{})
	v.SetDefault("LOG_LEVEL", "info")
}

var envBindings = [][2]string{
	// Server config
	{"SERVER.ENVIRONMENT", "ENVIRONMENT"},
	{"SERVER.METRICS_PORT", "METRICS_PORT"},
	{"SERVER.VERSION", "VERSION"},
	// Discord config
	{"DISCORD.TOKEN", "DISCORD_BOT_TOKEN"},
	{"DISCORD.COMMAND_PREFIX", "DISCORD_COMMAND_PREFIX"},
	{"DISCORD.ALLOWED_CHANNELS", "DISCORD_ALLOWED_CHANNELS"},
	// Extraction config
	{"EXTRACTION.API_KEY", "OPENAI_API_KEY"},
	{"EXTRACTION.BASE_URL", "EXTRACTION_BASE_URL"},
	{"EXTRACTION.MODEL", "EXTRACTION_MODEL"},
	{"EXTRACTION.TIMEOUT_SECONDS", "EXTRACTION_TIMEOUT_SECONDS"},
	// OCR config
	{"OCR.PROVIDER", "OCR_PROVIDER"},
	{"OCR.MODEL", "OCR_MODEL"},
	{"OCR.API_KEY", "OCR_API_KEY"},
	{"OCR.BASE_URL", "OCR_BASE_URL"},
	{"OCR.TIMEOUT_SECONDS", "OCR_TIMEOUT_SECONDS"},
	{"OCR.DOWNLOAD_DIR", "OCR_DOWNLOAD_DIR"},
	// Sheets config
	{"SHEETS.CREDENTIALS_FILE", "GOOGLE_CREDENTIALS_FILE"},
	// ClickUp config
	{"CLICKUP.ENABLED", "CLICKUP_ENABLED"},
	{"CLICKUP.API_TOKEN", "CLICKUP_API_TOKEN"},
	{"CLICKUP.LIST_ID", "CLICKUP_LIST_ID"},
	// Pipeline config
	{"PIPELINE.REQUIRED_FIELDS", "PIPELINE_REQUIRED_FIELDS"},
	{"PIPELINE.MAX_MISSING", "PIPELINE_MAX_MISSING"},
	{"PIPELINE.ROUTING_TABLES_PATH", "ROUTING_TABLES_PATH"},
	// WorkerPool config
	{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
	{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
	{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
	{"WORKER_POOL.JOB_TIMEOUT_SECONDS", "WORKER_POOL_JOB_TIMEOUT_SECONDS"},
	// Redis config
	{"REDIS.ENABLED", "REDIS_ENABLED"},
	{"REDIS.ADDRESS", "REDIS_ADDRESS"},
	{"REDIS.PASSWORD", "REDIS_PASSWORD"},
	{"REDIS.DB", "REDIS_DB"},
	{"REDIS.USE_TLS", "REDIS_USE_TLS"},
	// Database config
	{"DATABASE.ENABLED", "DATABASE_ENABLED"},
	{"DATABASE.URL", "DATABASE_URL"},
	// Email config
	{"EMAIL.ENABLED", "EMAIL_ENABLED"},
	{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
	{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS"},
	{"EMAIL.OPS_RECIPIENTS", "EMAIL_OPS_RECIPIENTS"},
}

// LoadConfig loads configuration from environment variables and, when
// CONFIG_FILE is set, a YAML file, using Viper. It sets default values,
// unmarshals the configuration and validates it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	log.Infow("Configuration loaded",
		"environment", v.GetString("SERVER.ENVIRONMENT"),
		"ocr_provider", v.GetString("OCR.PROVIDER"),
		"extraction_model", v.GetString("EXTRACTION.MODEL"),
		"max_missing", v.GetInt("PIPELINE.MAX_MISSING"),
		"redis_enabled", v.GetBool("REDIS.ENABLED"),
		"database", logger.MaskConnectionString(v.GetString("DATABASE.URL")),
	)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Discord.Token == "" {
		return fmt.Errorf("discord bot token is required")
	}
	if strings.TrimSpace(cfg.Discord.CommandPrefix) == "" {
		return fmt.Errorf("discord command prefix is required")
	}

	if cfg.Extraction.APIKey == "" {
		return fmt.Errorf("extraction API key is required")
	}
	if _, err := url.ParseRequestURI(cfg.Extraction.BaseURL); err != nil {
		return fmt.Errorf("invalid extraction base URL: %w", err)
	}
	if cfg.Extraction.TimeoutSeconds <= 0 {
		return fmt.Errorf("extraction timeout must be positive")
	}

	if err := validateOCRConfig(&cfg.OCR, cfg.Extraction.APIKey); err != nil {
		return err
	}

	if cfg.Sheets.CredentialsFile == "" {
		return fmt.Errorf("sheets credentials file is required")
	}
	if cfg.Sheets.TimeoutSeconds <= 0 {
		return fmt.Errorf("sheets timeout must be positive")
	}

	if err := validatePipelineConfig(&cfg.Pipeline); err != nil {
		return err
	}

	validateClickUpConfig(&cfg.ClickUp, log)

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool shutdown timeout must be positive")
	}
	if cfg.WorkerPool.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool job timeout must be positive")
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Address == "" {
			return fmt.Errorf("redis address is required when redis is enabled")
		}
		if cfg.Redis.DedupTTLHours <= 0 {
			return fmt.Errorf("redis dedup TTL must be positive")
		}
		if cfg.Redis.SubmissionsPerMinute <= 0 {
			return fmt.Errorf("redis submissions per minute must be positive")
		}
	}

	if cfg.Database.Enabled && cfg.Database.URL == "" {
		return fmt.Errorf("database URL is required when the outcome ledger is enabled")
	}

	validateEmailConfig(&cfg.Email, log)

	return nil
}

func validateOCRConfig(cfg *OCRConfig, extractionKey string) error {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			cfg.APIKey = extractionKey
		}
	case "gemini":
		if cfg.APIKey == "" {
			return fmt.Errorf("OCR API key is required for the gemini provider")
		}
	default:
		return fmt.Errorf("unknown OCR provider %q", cfg.Provider)
	}
	if cfg.TimeoutSeconds <= 0 {
		return fmt.Errorf("OCR timeout must be positive")
	}
	if cfg.MaxAttachmentBytes <= 0 {
		return fmt.Errorf("OCR max attachment bytes must be positive")
	}
	if cfg.DownloadDir == "" {
		return fmt.Errorf("OCR download dir is required")
	}
	return nil
}

func validatePipelineConfig(cfg *PipelineConfig) error {
	required, err := cfg.RequiredFieldList()
	if err != nil {
		return err
	}
	if len(required) == 0 {
		return fmt.Errorf("at least one required field must be configured")
	}
	if cfg.MaxMissing < 0 || cfg.MaxMissing > len(required) {
		return fmt.Errorf("max missing must be between 0 and %d, got %d", len(required), cfg.MaxMissing)
	}
	if cfg.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("attachment fetch timeout must be positive")
	}
	if cfg.NotifyTimeoutSecs <= 0 {
		return fmt.Errorf("notify timeout must be positive")
	}
	return nil
}

// validateClickUpConfig auto-disables task creation when it is enabled without
// credentials, mirroring a missing integration rather than failing startup.
func validateClickUpConfig(cfg *ClickUpConfig, log *zap.SugaredLogger) {
	if !cfg.Enabled {
		return
	}
	if cfg.APIToken == "" || cfg.ListID == "" {
		log.Warn("ClickUp token or list id not set, auto-disabling task creation")
		cfg.Enabled = false
		return
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 10
	}
}

func validateEmailConfig(cfg *EmailConfig, log *zap.SugaredLogger) {
	if !cfg.Enabled {
		return
	}
	if cfg.ResendAPIKey == "" || cfg.FromAddress == "" || len(cfg.OpsRecipients) == 0 {
		log.Warn("Email alerting enabled without key, sender or recipients, auto-disabling")
		cfg.Enabled = false
	}
}
