package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

const envPrefix = "ESCROW_"

type Config struct {
	Primary   Primary         `koanf:"primary"`
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Auth      AuthConfig      `koanf:"auth"`
	Payments  PaymentsConfig  `koanf:"payments"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Features  FeaturesConfig  `koanf:"features"`
	Providers ProvidersConfig `koanf:"providers"`
	Retry     RetryConfig     `koanf:"retry"`
	Logger    LoggerConfig    `koanf:"logger"`
	Worker    WorkerConfig    `koanf:"worker"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`

	ApplicationName  string        `koanf:"application_name"`
	StatementTimeout time.Duration `koanf:"statement_timeout"`
	// ConnectAttempts bounds the startup ping loop; ConnectBackoff doubles between tries.
	ConnectAttempts int           `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`

	DialTimeout time.Duration `koanf:"dial_timeout"`
	ReadTimeout time.Duration `koanf:"read_timeout"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret" validate:"required"`
	Issuer    string `koanf:"issuer"`
}

type PaymentsConfig struct {
	MinAmount       int64         `koanf:"min_amount" validate:"required,gt=0"`
	DefaultCurrency string        `koanf:"default_currency" validate:"required,len=3"`
	Expiry          time.Duration `koanf:"expiry" validate:"required"`
	ProviderTimeout time.Duration `koanf:"provider_timeout" validate:"required"`
}

type RateLimitConfig struct {
	CreateIntentLimit int           `koanf:"create_intent_limit" validate:"required,gt=0"`
	Window            time.Duration `koanf:"window" validate:"required"`
}

type FeaturesConfig struct {
	FailOpen    bool          `koanf:"fail_open"`
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"required"`
	// CacheTTL keeps flag reads in memory per process. Zero reads the store on every
	// request. A positive value delays a kill switch by up to CacheTTL on each instance.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

type ProvidersConfig struct {
	EMIS     EMISConfig     `koanf:"emis"`
	ProxyPay ProxyPayConfig `koanf:"proxypay"`
	Stripe   StripeConfig   `koanf:"stripe"`
}

// EMISConfig configures the EMIS GPO (Multicaixa Express) mobile-push gateway.
type EMISConfig struct {
	BaseURL     string `koanf:"base_url"`
	FrameToken  string `koanf:"frame_token"`
	CallbackURL string `koanf:"callback_url"`
}

// ProxyPayConfig configures the ProxyPay RPS reference gateway.
type ProxyPayConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	EntityID string `koanf:"entity_id"`
}

type StripeConfig struct {
	SecretKey  string `koanf:"secret_key"`
	APIBaseURL string `koanf:"api_base_url"`
	SuccessURL string `koanf:"success_url"`
	CancelURL  string `koanf:"cancel_url"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int32         `koanf:"max_retries"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type WorkerConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"required"`
	BatchSize  int           `koanf:"batch_size" validate:"required"`
	StaleAfter time.Duration `koanf:"stale_after" validate:"required"`
	// MaxReconcileFailures is how many failed sweeps a provider_created attempt
	// gets before it is abandoned for manual review.
	MaxReconcileFailures int `koanf:"max_reconcile_failures" validate:"required"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.read_timeout":            "15s",
		"server.write_timeout":           "15s",
		"server.idle_timeout":            "60s",
		"database.application_name":      "marketplace-escrow",
		"database.statement_timeout":     "5s",
		"database.connect_attempts":      5,
		"database.connect_backoff":       "500ms",
		"redis.dial_timeout":             "2s",
		"redis.read_timeout":             "500ms",
		"payments.min_amount":            100,
		"payments.default_currency":      "AOA",
		"payments.expiry":                "30m",
		"payments.provider_timeout":      "10s",
		"rate_limit.create_intent_limit": 20,
		"rate_limit.window":              "1h",
		"features.read_timeout":          "500ms",
		"features.cache_ttl":             "0s",
		"retry.base_delay":               "200ms",
		"retry.max_retries":              3,
		"logger.level":                   "info",
		"logger.format":                  "json",
		"worker.interval":                "1m",
		"worker.batch_size":              50,
		"worker.stale_after":             "2m",
		"worker.max_reconcile_failures":  5,
	}
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load config defaults", "error", err)
		return nil, err
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

// NewLogger builds the process logger at the configured level and format.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
