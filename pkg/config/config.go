package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable read by the backend.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Mail         MailConfig
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
	Env          string `envconfig:"MKT_APP_ENV" required:"true"`
	Port         string `envconfig:"MKT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MKT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MKT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MKT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MKT_DB_DSN"`
	Driver string `envconfig:"MKT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"MKT_DB_HOST"`
	Port     int    `envconfig:"MKT_DB_PORT" default:"5432"`
	User     string `envconfig:"MKT_DB_USER"`
	Password string `envconfig:"MKT_DB_PASSWORD"`
	Name     string `envconfig:"MKT_DB_NAME"`
	SSLMode  string `envconfig:"MKT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MKT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MKT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MKT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MKT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MKT_REDIS_URL"`
	Address      string        `envconfig:"MKT_REDIS_ADDR"`
	Password     string        `envconfig:"MKT_REDIS_PASSWORD"`
	DB           int           `envconfig:"MKT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MKT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MKT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MKT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MKT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MKT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"MKT_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"MKT_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"MKT_STRIPE_ENV" default:"test"`
	EventTTL      time.Duration `envconfig:"MKT_STRIPE_EVENT_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type MailConfig struct {
	Host        string `envconfig:"MKT_SMTP_HOST"`
	Port        int    `envconfig:"MKT_SMTP_PORT" default:"587"`
	User        string `envconfig:"MKT_SMTP_USER"`
	Password    string `envconfig:"MKT_SMTP_PASSWORD"`
	DefaultFrom string `envconfig:"MKT_SMTP_FROM" default:"noreply@marktplatz.ch"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MKT_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"MKT_CRON_LOCK_TTL" default:"25h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MKT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MKT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	required := map[string]string{
		"MKT_DB_HOST": db.Host,
		"MKT_DB_USER": db.User,
		"MKT_DB_NAME": db.Name,
	}
	for _, key := range []string{"MKT_DB_HOST", "MKT_DB_USER", "MKT_DB_NAME"} {
		if required[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either MKT_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
