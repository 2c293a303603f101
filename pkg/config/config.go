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
	DB           DBConfig
	Redis        RedisConfig
	Catalog      CatalogConfig
	Aggregation  AggregationConfig
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
	Env          string `envconfig:"ZHONGDAO_APP_ENV" required:"true"`
	Port         string `envconfig:"ZHONGDAO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ZHONGDAO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ZHONGDAO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"ZHONGDAO_DB_DSN"`
	Driver string `envconfig:"ZHONGDAO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ZHONGDAO_DB_HOST"`
	LegacyPort     int    `envconfig:"ZHONGDAO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ZHONGDAO_DB_USER"`
	LegacyPassword string `envconfig:"ZHONGDAO_DB_PASSWORD"`
	LegacyName     string `envconfig:"ZHONGDAO_DB_NAME"`
	LegacySSLMode  string `envconfig:"ZHONGDAO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ZHONGDAO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ZHONGDAO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ZHONGDAO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ZHONGDAO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ZHONGDAO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ZHONGDAO_REDIS_ADDR"`
	Password     string        `envconfig:"ZHONGDAO_REDIS_PASSWORD"`
	DB           int           `envconfig:"ZHONGDAO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ZHONGDAO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ZHONGDAO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ZHONGDAO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ZHONGDAO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ZHONGDAO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// CatalogConfig points at the tier catalog definition. An empty path means the
// compiled-in defaults.
type CatalogConfig struct {
	Path string `envconfig:"ZHONGDAO_CATALOG_PATH"`
}

// AggregationConfig tunes the sale aggregation engine.
type AggregationConfig struct {
	// LockWait bounds how long a single member lock acquisition may block
	// before the operation fails with a contention error.
	LockWait time.Duration `envconfig:"ZHONGDAO_AGGREGATION_LOCK_WAIT" default:"2s"`
	// MaxDepth caps the ancestor chain length accepted on registration.
	MaxDepth int `envconfig:"ZHONGDAO_AGGREGATION_MAX_DEPTH" default:"64"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ZHONGDAO_AUTO_MIGRATE" default:"false"`
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
