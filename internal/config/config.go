package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v9"
)

const (
	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	GitSHA    string `env:"GIT_SHA" envDefault:"dev"`
	BuildTime string `env:"BUILD_TIME"`

	DBDriver               string `env:"DB_DRIVER" envDefault:"mysql"` // mysql or sqlite
	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	SQLitePath             string `env:"SQLITE_PATH" envDefault:"demart.db"`

	// AuthMode is firebase, or header to trust X-User-Id (sqlite runs only).
	AuthMode            string `env:"AUTH_MODE" envDefault:"firebase"`
	FirebaseProjectID   string `env:"FIREBASE_PROJECT_ID"`
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX" envDefault:"vercel.app"`

	Settlement Settlement

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

type Settlement struct {
	MinDelay     time.Duration `env:"SETTLEMENT_MIN_DELAY" envDefault:"5s"`
	MaxDelay     time.Duration `env:"SETTLEMENT_MAX_DELAY" envDefault:"15s"`
	PollInterval time.Duration `env:"SETTLEMENT_POLL_INTERVAL" envDefault:"1s"`
	Lease        time.Duration `env:"SETTLEMENT_LEASE" envDefault:"30s"`
	BatchSize    int           `env:"SETTLEMENT_BATCH_SIZE" envDefault:"20"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql":
		if c.DBUser == "" || c.DBName == "" || (c.DBHost == "" && c.InstanceConnectionName == "") {
			return errors.New("mysql driver requires DB_USER, DB_NAME and DB_HOST or INSTANCE_CONNECTION_NAME")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("sqlite driver requires SQLITE_PATH")
		}
	default:
		return errors.New("DB_DRIVER must be mysql or sqlite")
	}
	switch c.AuthMode {
	case AuthModeFirebase:
		if c.FirebaseProjectID == "" {
			return errors.New("AUTH_MODE=firebase requires FIREBASE_PROJECT_ID")
		}
	case AuthModeHeader:
		if c.DBDriver != "sqlite" {
			return errors.New("AUTH_MODE=header is only allowed with DB_DRIVER=sqlite")
		}
	default:
		return errors.New("AUTH_MODE must be firebase or header")
	}
	s := c.Settlement
	if s.MinDelay <= 0 || s.MaxDelay <= s.MinDelay {
		return errors.New("settlement delays must satisfy 0 < SETTLEMENT_MIN_DELAY < SETTLEMENT_MAX_DELAY")
	}
	if s.PollInterval <= 0 || s.Lease <= 0 || s.BatchSize <= 0 {
		return errors.New("settlement poll interval, lease and batch size must be positive")
	}
	return nil
}
