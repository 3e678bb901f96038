package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Dispatch     DispatchConfig
	Recalc       RecalcConfig
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
	Env          string `envconfig:"MILLTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"MILLTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MILLTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MILLTRACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MILLTRACK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MILLTRACK_DB_DSN"`
	Driver string `envconfig:"MILLTRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MILLTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"MILLTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MILLTRACK_DB_USER"`
	LegacyPassword string `envconfig:"MILLTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"MILLTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"MILLTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MILLTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MILLTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MILLTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MILLTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MILLTRACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MILLTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"MILLTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"MILLTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MILLTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MILLTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MILLTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MILLTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MILLTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MILLTRACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MILLTRACK_AUTO_MIGRATE" default:"false"`
}

type DispatchConfig struct {
	IdempotencyTTL time.Duration `envconfig:"MILLTRACK_DISPATCH_IDEMPOTENCY_TTL" default:"168h"`
}

type RecalcConfig struct {
	Interval    time.Duration `envconfig:"MILLTRACK_RECALC_INTERVAL" default:"24h"`
	LockTTL     time.Duration `envconfig:"MILLTRACK_RECALC_LOCK_TTL" default:"2h"`
	MetricsPort string        `envconfig:"MILLTRACK_RECALC_METRICS_PORT" default:"9090"`
	RunOnce     bool          `envconfig:"MILLTRACK_RECALC_RUN_ONCE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
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
