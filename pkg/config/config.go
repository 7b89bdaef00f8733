package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "kinmel"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Esewa        EsewaConfig
	Checkout     CheckoutConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KINMEL_APP_ENV" required:"true"`
	Port         string `envconfig:"KINMEL_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"KINMEL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KINMEL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KINMEL_DB_DSN"`
	Driver string `envconfig:"KINMEL_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"KINMEL_DB_HOST"`
	Port     int    `envconfig:"KINMEL_DB_PORT" default:"5432"`
	User     string `envconfig:"KINMEL_DB_USER"`
	Password string `envconfig:"KINMEL_DB_PASSWORD"`
	Name     string `envconfig:"KINMEL_DB_NAME"`
	SSLMode  string `envconfig:"KINMEL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KINMEL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KINMEL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KINMEL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KINMEL_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either KINMEL_DB_DSN or host/user/name parts are required")
	}
	userInfo := url.User(d.User)
	if d.Password != "" {
		userInfo = url.UserPassword(d.User, d.Password)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	d.DSN = u.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"KINMEL_REDIS_URL"`
	Address      string        `envconfig:"KINMEL_REDIS_ADDR"`
	Password     string        `envconfig:"KINMEL_REDIS_PASSWORD"`
	DB           int           `envconfig:"KINMEL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KINMEL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KINMEL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KINMEL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KINMEL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KINMEL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EsewaConfig carries the ePay v2 endpoints and signing material.
type EsewaConfig struct {
	SecretKey   string        `envconfig:"KINMEL_ESEWA_SECRET_KEY" required:"true"`
	ProductCode string        `envconfig:"KINMEL_ESEWA_PRODUCT_CODE" required:"true"`
	FormURL     string        `envconfig:"KINMEL_ESEWA_FORM_URL" default:"https://rc-epay.esewa.com.np/api/epay/main/v2/form"`
	StatusURL   string        `envconfig:"KINMEL_ESEWA_STATUS_URL" default:"https://rc.esewa.com.np/api/epay/transaction/status/"`
	SuccessURL  string        `envconfig:"KINMEL_ESEWA_SUCCESS_URL" required:"true"`
	FailureURL  string        `envconfig:"KINMEL_ESEWA_FAILURE_URL" required:"true"`
	HTTPTimeout time.Duration `envconfig:"KINMEL_ESEWA_HTTP_TIMEOUT" default:"10s"`
	CallbackTTL time.Duration `envconfig:"KINMEL_ESEWA_CALLBACK_DEDUPE_TTL" default:"24h"`
}

// CheckoutConfig carries order placement knobs.
type CheckoutConfig struct {
	// DeliveryCharge is the flat per-order delivery fee, added once per order
	// regardless of how many sellers it spans.
	DeliveryCharge string `envconfig:"KINMEL_CHECKOUT_DELIVERY_CHARGE" default:"100.00"`
}

type OutboxConfig struct {
	Channel      string        `envconfig:"KINMEL_OUTBOX_CHANNEL" default:"kinmel.events"`
	PollInterval time.Duration `envconfig:"KINMEL_OUTBOX_POLL_INTERVAL" default:"2s"`
	BatchSize    int           `envconfig:"KINMEL_OUTBOX_BATCH_SIZE" default:"50"`
}

// CronConfig drives the scheduled maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"KINMEL_CRON_INTERVAL" default:"1h"`
	LockTTL             time.Duration `envconfig:"KINMEL_CRON_LOCK_TTL" default:"2h"`
	OrderExpiryDays     int           `envconfig:"KINMEL_CRON_ORDER_EXPIRY_DAYS" default:"7"`
	OutboxRetentionDays int           `envconfig:"KINMEL_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KINMEL_AUTO_MIGRATE" default:"false"`
}
