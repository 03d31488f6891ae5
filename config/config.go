package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	AES          AESConfig          `mapstructure:"aes"`
	Log          LogConfig          `mapstructure:"log"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Notification NotificationConfig `mapstructure:"notification"`
	Withdrawal   WithdrawalConfig   `mapstructure:"withdrawal"`
	Lock         LockConfig         `mapstructure:"lock"`
	Jobs         JobsConfig         `mapstructure:"jobs"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Delivery     DeliveryConfig     `mapstructure:"delivery"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// ProviderConfig configures the payment provider: inbound webhooks and outbound payouts.
type ProviderConfig struct {
	Name          string        `mapstructure:"name"`
	Mode          string        `mapstructure:"mode"` // live, test
	BaseURL       string        `mapstructure:"base_url"`
	SecretKey     string        `mapstructure:"secret_key"`     // bearer for payout API calls
	WebhookSecret string        `mapstructure:"webhook_secret"` // HMAC-SHA512 key for x-provider-signature
	Timeout       time.Duration `mapstructure:"timeout"`
}

// IsLive reports whether payouts go to the real provider.
func (p ProviderConfig) IsLive() bool {
	return p.Mode == "live"
}

type NotificationConfig struct {
	URL          string        `mapstructure:"url"` // empty = log-only dispatcher
	Channel      string        `mapstructure:"channel"`
	OpsRecipient string        `mapstructure:"ops_recipient"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type WithdrawalConfig struct {
	OTPTTL         time.Duration `mapstructure:"otp_ttl"`
	OTPMaxAttempts int64         `mapstructure:"otp_max_attempts"`
	MaxPINAttempts int           `mapstructure:"max_pin_attempts"`
	PINLockout     time.Duration `mapstructure:"pin_lockout"`
}

type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type JobsConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	ReconciliationInterval time.Duration `mapstructure:"reconciliation_interval"`
	StuckDetectionInterval time.Duration `mapstructure:"stuck_detection_interval"`
	LockSweepInterval      time.Duration `mapstructure:"lock_sweep_interval"`
	WebhookRetryInterval   time.Duration `mapstructure:"webhook_retry_interval"`
	WebhookMaxAttempts     int           `mapstructure:"webhook_max_attempts"`
	RunTimeout             time.Duration `mapstructure:"run_timeout"`
}

type MetricsConfig struct {
	SlowPathThreshold time.Duration `mapstructure:"slow_path_threshold"`
	SlowPathCapacity  int           `mapstructure:"slow_path_capacity"`
}

type DeliveryConfig struct {
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MWL_ (Merchant Wallet Ledger).
// Nested keys use underscore: MWL_DATABASE_HOST, MWL_PROVIDER_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallet_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "3s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "12h")
	v.SetDefault("jwt.issuer", "merchant-wallet-ledger")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("provider.name", "paystack")
	v.SetDefault("provider.mode", "test")
	v.SetDefault("provider.base_url", "https://api.paystack.co")
	v.SetDefault("provider.secret_key", "")
	v.SetDefault("provider.webhook_secret", "")
	v.SetDefault("provider.timeout", "10s")
	v.SetDefault("notification.url", "")
	v.SetDefault("notification.channel", "email")
	v.SetDefault("notification.ops_recipient", "ops@wallet-ledger.local")
	v.SetDefault("notification.timeout", "5s")
	v.SetDefault("withdrawal.otp_ttl", "10m")
	v.SetDefault("withdrawal.otp_max_attempts", 5)
	v.SetDefault("withdrawal.max_pin_attempts", 5)
	v.SetDefault("withdrawal.pin_lockout", "15m")
	v.SetDefault("lock.timeout", "30s")
	v.SetDefault("jobs.enabled", true)
	v.SetDefault("jobs.reconciliation_interval", "1h")
	v.SetDefault("jobs.stuck_detection_interval", "5m")
	v.SetDefault("jobs.lock_sweep_interval", "30s")
	v.SetDefault("jobs.webhook_retry_interval", "30s")
	v.SetDefault("jobs.webhook_max_attempts", 5)
	v.SetDefault("jobs.run_timeout", "2m")
	v.SetDefault("metrics.slow_path_threshold", "750ms")
	v.SetDefault("metrics.slow_path_capacity", 200)
	v.SetDefault("delivery.dedupe_ttl", "168h")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MWL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MWL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
