package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/coinledger/internal/logger"
	"github.com/nkiryanov/coinledger/internal/service/sweeper"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultEnvironment    = logger.EnvProduction
	defaultRewardTimezone = "UTC"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key shared with identity provider to verify access tokens
	SecretKey string

	// Environment
	Environment string

	// TOML file with reward policies; built-in policies are used if not set
	RewardPolicyFile string

	// IANA time zone daily reward limits are reset in
	RewardTimezone string

	// How often stuck checkout orders are looked for
	SweepInterval time.Duration

	// Order is stuck if it is not updated for that long
	SweepStaleAfter time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		ListenAddr:      defaultListenAddr,
		Environment:     defaultEnvironment,
		RewardTimezone:  defaultRewardTimezone,
		SweepInterval:   sweeper.DefaultInterval,
		SweepStaleAfter: sweeper.DefaultStaleAfter,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"REWARD_POLICY_FILE": setString(&c.RewardPolicyFile),
		"REWARD_TIMEZONE":    setString(&c.RewardTimezone),
		"SWEEP_INTERVAL":     setDuration(&c.SweepInterval),
		"SWEEP_STALE_AFTER":  setDuration(&c.SweepStaleAfter),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("coins", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to verify access tokens")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.RewardPolicyFile, "reward-policies", "p", c.RewardPolicyFile, "TOML file with reward policies")
	fs.StringVar(&c.RewardTimezone, "reward-timezone", c.RewardTimezone, "Time zone daily reward limits are counted in")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Interval of stuck orders recovery")
	fs.DurationVar(&c.SweepStaleAfter, "sweep-stale-after", c.SweepStaleAfter, "Age after which pending order is considered stuck")

	return fs.Parse(args)
}
