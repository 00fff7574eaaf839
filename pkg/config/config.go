package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "DMSHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv      = "DMSHUB_APP_ENV"
	EnvPort        = "DMSHUB_APP_PORT"
	EnvDBDSN       = "DMSHUB_DB_DSN"
	EnvDBHost      = "DMSHUB_DB_HOST"
	EnvDBUser      = "DMSHUB_DB_USER"
	EnvDBName      = "DMSHUB_DB_NAME"
	EnvRedisURL    = "DMSHUB_REDIS_URL"
	EnvMoraEnabled = "DMSHUB_MORA_ENABLED"
	EnvMoraFixed   = "DMSHUB_MORA_FIXED_RATE"
	EnvMoraDaily   = "DMSHUB_MORA_DAILY_RATE"
	EnvMoraGrace   = "DMSHUB_MORA_GRACE_DAYS"
	EnvKafkaBroker = "DMSHUB_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Policy       PolicyConfig
	FeatureFlags FeatureFlagsConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Policy.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DMSHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"DMSHUB_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"DMSHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DMSHUB_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"DMSHUB_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DBConfig struct {
	DSN    string `envconfig:"DMSHUB_DB_DSN"`
	Driver string `envconfig:"DMSHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DMSHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"DMSHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DMSHUB_DB_USER"`
	LegacyPassword string `envconfig:"DMSHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"DMSHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"DMSHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DMSHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DMSHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DMSHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DMSHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DMSHUB_REDIS_URL"`
	Address      string        `envconfig:"DMSHUB_REDIS_ADDR"`
	Password     string        `envconfig:"DMSHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"DMSHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DMSHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DMSHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DMSHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DMSHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DMSHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
	// LockTTL bounds how long a crashed api replica holds a market or wallet lock.
	LockTTL      time.Duration `envconfig:"DMSHUB_REDIS_LOCK_TTL" default:"30s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

// PolicyConfig carries the municipal fee policy. Rates are fractions (0.05 = 5%).
type PolicyConfig struct {
	MoraEnabled            bool            `envconfig:"DMSHUB_MORA_ENABLED" default:"true"`
	MoraFixedRate          decimal.Decimal `envconfig:"DMSHUB_MORA_FIXED_RATE" default:"0"`
	MoraDailyRate          decimal.Decimal `envconfig:"DMSHUB_MORA_DAILY_RATE" default:"0"`
	MoraGraceDays          int             `envconfig:"DMSHUB_MORA_GRACE_DAYS" default:"0"`
	MaxInstallments        int             `envconfig:"DMSHUB_MAX_INSTALLMENTS" default:"12"`
	RequireItinerantCredit bool            `envconfig:"DMSHUB_REQUIRE_ITINERANT_CREDIT" default:"true"`
	Timezone               string          `envconfig:"DMSHUB_TIMEZONE" default:"Europe/Rome"`
}

func (p PolicyConfig) validate() error {
	if p.MoraFixedRate.IsNegative() || p.MoraDailyRate.IsNegative() {
		return fmt.Errorf("mora rates must not be negative")
	}
	if p.MoraGraceDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvMoraGrace)
	}
	if p.MaxInstallments < 1 || p.MaxInstallments > 12 {
		return fmt.Errorf("max installments must be between 1 and 12")
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", p.Timezone, err)
	}
	return nil
}

// Location returns the market timezone used to derive "today".
func (p PolicyConfig) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"DMSHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"DMSHUB_AUTO_MIGRATE" default:"false"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"DMSHUB_KAFKA_BROKERS"`
	Topic   string   `envconfig:"DMSHUB_KAFKA_TOPIC" default:"dmshub.market-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"DMSHUB_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"DMSHUB_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"DMSHUB_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"DMSHUB_CRON_INTERVAL" default:"1h"`
	OutboxRetentionDays int           `envconfig:"DMSHUB_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.Driver == DriverSQLite {
		db.DSN = "file:dmshub.db?cache=shared"
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
