package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig       ServerConfig       `json:"server"`
	PlatformConfig     PlatformConfig     `json:"platform"`
	RetryConfig        RetryConfig        `json:"retry"`
	WorkflowConfig     WorkflowConfig     `json:"workflow"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	NotificationConfig NotificationConfig `json:"notification"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// ServerConfig holds the admin API server configuration
type ServerConfig struct {
	Port           int      `json:"port"`
	Host           string   `json:"host"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// PlatformConfig holds the upstream brokerage platform API configuration
type PlatformConfig struct {
	BaseURL        string        `json:"base_url"`
	ServiceToken   string        `json:"service_token"`   // bearer token for platform calls, may come from Vault
	RequestTimeout time.Duration `json:"request_timeout"` // per-attempt timeout
}

// RetryConfig controls retry behavior for platform calls
type RetryConfig struct {
	MaxRetries  int           `json:"max_retries"`  // extra attempts after the first
	BackoffBase time.Duration `json:"backoff_base"` // delay before first retry, doubled each attempt
}

// WorkflowConfig holds verification workflow policy knobs
type WorkflowConfig struct {
	AllowOverdraw      bool    `json:"allow_overdraw"`       // approve withdrawals exceeding balance (clamped at zero)
	AlertAboveAmount   float64 `json:"alert_above_amount"`   // ops alert threshold for approved amounts, 0 disables
	SnapshotTTLMinutes int     `json:"snapshot_ttl_minutes"` // cached snapshot lifetime
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type AuthConfig struct {
	JWTSecret           string        `json:"jwt_secret"` // may come from Vault
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	BcryptCost          int           `json:"bcrypt_cost"`
	MinPasswordLength   int           `json:"min_password_length"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Output string `json:"output"` // stdout, stderr, or file path
	Pretty bool   `json:"pretty"` // human-readable console output instead of JSON
}

// Load reads configuration from config.json (if present) and applies
// environment variable overrides on top.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnvOrDefault("CONFIG_FILE", "config.json"); path != "" {
		if fileCfg, err := loadFromFile(path); err == nil {
			cfg = fileCfg
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.PlatformConfig.BaseURL == "" {
		return nil, fmt.Errorf("platform base URL is required (PLATFORM_BASE_URL)")
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerConfig: ServerConfig{
			Port:           8090,
			Host:           "0.0.0.0",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		PlatformConfig: PlatformConfig{
			RequestTimeout: 10 * time.Second,
		},
		RetryConfig: RetryConfig{
			MaxRetries:  2,
			BackoffBase: 500 * time.Millisecond,
		},
		WorkflowConfig: WorkflowConfig{
			AllowOverdraw:      true,
			SnapshotTTLMinutes: 60,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "backoffice",
			Database: "backoffice",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 8 * time.Hour,
			BcryptCost:          12,
			MinPasswordLength:   8,
		},
		VaultConfig: VaultConfig{
			MountPath:  "secret",
			SecretPath: "backoffice",
		},
		LoggingConfig: LoggingConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", "") == "true" || cfg.ServerConfig.ProductionMode

	cfg.PlatformConfig.BaseURL = getEnvOrDefault("PLATFORM_BASE_URL", cfg.PlatformConfig.BaseURL)
	cfg.PlatformConfig.ServiceToken = getEnvOrDefault("PLATFORM_SERVICE_TOKEN", cfg.PlatformConfig.ServiceToken)
	cfg.PlatformConfig.RequestTimeout = getEnvDurationOrDefault("PLATFORM_REQUEST_TIMEOUT", cfg.PlatformConfig.RequestTimeout)

	cfg.RetryConfig.MaxRetries = getEnvIntOrDefault("RETRY_MAX_RETRIES", cfg.RetryConfig.MaxRetries)
	cfg.RetryConfig.BackoffBase = getEnvDurationOrDefault("RETRY_BACKOFF_BASE", cfg.RetryConfig.BackoffBase)

	if v := os.Getenv("WORKFLOW_ALLOW_OVERDRAW"); v != "" {
		cfg.WorkflowConfig.AllowOverdraw = v == "true"
	}
	cfg.WorkflowConfig.AlertAboveAmount = getEnvFloatOrDefault("WORKFLOW_ALERT_ABOVE_AMOUNT", cfg.WorkflowConfig.AlertAboveAmount)
	cfg.WorkflowConfig.SnapshotTTLMinutes = getEnvIntOrDefault("WORKFLOW_SNAPSHOT_TTL_MINUTES", cfg.WorkflowConfig.SnapshotTTLMinutes)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true" || cfg.RedisConfig.Enabled
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.BcryptCost = getEnvIntOrDefault("BCRYPT_COST", cfg.AuthConfig.BcryptCost)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true" || cfg.VaultConfig.Enabled
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true" || cfg.NotificationConfig.Enabled
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Telegram.Enabled = cfg.NotificationConfig.Telegram.BotToken != ""
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
	cfg.NotificationConfig.Discord.Enabled = cfg.NotificationConfig.Discord.WebhookURL != ""

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	if v := os.Getenv("LOG_PRETTY"); v != "" {
		cfg.LoggingConfig.Pretty = v == "true"
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GenerateSampleConfig writes a starter configuration file
func GenerateSampleConfig(filename string) error {
	cfg := defaultConfig()
	cfg.PlatformConfig.BaseURL = "https://platform.example.com/api"
	cfg.PlatformConfig.ServiceToken = "platform-service-token-here"
	cfg.AuthConfig.JWTSecret = "change-me"

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
