// Package config loads storefront settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const EnvPrefix = "STOREFRONT"

const (
	DriverREST     = "rest"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port     string `default:"8080"`
	LogLevel string `split_words:"true" default:"info"`

	// StoreDriver selects the order store: rest (hosted table API),
	// postgres or memory.
	StoreDriver  string        `split_words:"true" default:"rest"`
	StoreURL     string        `split_words:"true"`
	StoreKey     string        `split_words:"true"`
	StoreTimeout time.Duration `split_words:"true" default:"10s"`

	DB DBConfig

	BreakerMaxFailures int           `split_words:"true" default:"5"`
	BreakerTimeout     time.Duration `split_words:"true" default:"30s"`

	// KafkaBrokers is a comma separated list; empty disables order events.
	KafkaBrokers string `split_words:"true"`
	KafkaGroupID string `split_words:"true" default:"order-monitor"`

	NoticeTimeout time.Duration `split_words:"true" default:"5s"`
	SessionTTL    time.Duration `split_words:"true" default:"2h"`
	StaticDir     string        `split_words:"true"`
	SecureCookies bool          `split_words:"true" default:"false"`
}

type DBConfig struct {
	Host     string `default:"localhost"`
	Port     string `default:"5432"`
	User     string `default:"storefront"`
	Password string `default:"storefront"`
	Name     string `default:"orders"`
	SSLMode  string `split_words:"true" default:"disable"`
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// Load reads envFile if it exists, then the process environment. Values
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to load %s", envFile)
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to read environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverREST:
		if c.StoreURL == "" || c.StoreKey == "" {
			return errors.Errorf("%s_STORE_URL and %s_STORE_KEY are required for the %s store",
				EnvPrefix, EnvPrefix, DriverREST)
		}
	case DriverPostgres, DriverMemory:
	default:
		return errors.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	if c.NoticeTimeout <= 0 {
		return errors.New("notice timeout must be positive")
	}
	return nil
}

func (c *Config) KafkaEnabled() bool {
	return strings.TrimSpace(c.KafkaBrokers) != ""
}

// NewLogger builds the JSON logger shared by every component.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
