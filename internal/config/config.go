// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type PaymentConfig struct {
	SecretKey      string `yaml:"secret_key"`
	PublishableKey string `yaml:"publishable_key"`
	WebhookSecret  string `yaml:"webhook_secret"`
	BaseURL        string `yaml:"base_url"`
	// Environment is stamped into intent metadata and checked on every
	// webhook; it guards against a shared gateway account delivering
	// cross-environment events.
	Environment         string `yaml:"environment"`
	MerchantID          string `yaml:"merchant_id"`
	MerchantDisplayName string `yaml:"merchant_display_name"`
}

// DCBConfig configures direct carrier billing. Leaving ChargeURL empty
// disables the carrier payment method entirely.
type DCBConfig struct {
	ChargeURL      string        `yaml:"charge_url"`
	VerifyOTPURL   string        `yaml:"verify_otp_url"`
	APIKey         string        `yaml:"api_key"`
	MerchantMSISDN string        `yaml:"merchant_msisdn"`
	Timeout        time.Duration `yaml:"timeout"`
}

type FulfillmentConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	TenantKey string        `yaml:"tenant_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ReferralConfig struct {
	DefaultRuleID string `yaml:"default_rule_id"`
	RewardAmount  int64  `yaml:"reward_amount"` // minor units
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Sender   string `yaml:"sender"`
}

type PushConfig struct {
	BaseURL   string `yaml:"base_url"`
	ServerKey string `yaml:"server_key"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type OutboxConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BatchSize    int           `yaml:"batch_size"`
	Workers      int           `yaml:"workers"`
}

type WalletConfig struct {
	DefaultCurrency string `yaml:"default_currency"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Payment     PaymentConfig     `yaml:"payment"`
	DCB         DCBConfig         `yaml:"dcb"`
	Fulfillment FulfillmentConfig `yaml:"fulfillment"`
	Referral    ReferralConfig    `yaml:"referral"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Push        PushConfig        `yaml:"push"`
	Auth        AuthConfig        `yaml:"auth"`
	Outbox      OutboxConfig      `yaml:"outbox"`
	Wallet      WalletConfig      `yaml:"wallet"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payment.Environment == "" {
		cfg.Payment.Environment = "DEV"
	}
	if cfg.DCB.Timeout <= 0 {
		cfg.DCB.Timeout = 20 * time.Second
	}
	if cfg.Fulfillment.Timeout <= 0 {
		cfg.Fulfillment.Timeout = 20 * time.Second
	}
	if cfg.Outbox.PollInterval <= 0 {
		cfg.Outbox.PollInterval = 5 * time.Second
	}
	if cfg.Outbox.MaxAttempts <= 0 {
		cfg.Outbox.MaxAttempts = 5
	}
	if cfg.Outbox.BatchSize <= 0 {
		cfg.Outbox.BatchSize = 50
	}
	if cfg.Outbox.Workers <= 0 {
		cfg.Outbox.Workers = 4
	}
	if cfg.Wallet.DefaultCurrency == "" {
		cfg.Wallet.DefaultCurrency = "EUR"
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Payment.WebhookSecret == "" && !dev {
		return nil, errors.New("payment.webhook_secret is required")
	}
	if cfg.Referral.DefaultRuleID == "" {
		return nil, errors.New("referral.default_rule_id is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
