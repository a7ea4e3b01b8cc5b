package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/client"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/transaction"
)

const EnvPrefix = "asceticops"

// configuration keys
const (
	DatabaseURLKey        = "database-url"
	EngineKey             = "engine"
	EngineEndpointKey     = "engine-endpoint"
	IsolationLevelKey     = "isolation-level"
	MaxWaitKey            = "interactive-max-wait"
	TimeoutKey            = "interactive-timeout"
	StandaloneFallbackKey = "standalone-fallback"
	LogLevelKey           = "log-level"
	LogFormatKey          = "log-format"
)

const (
	EnginePg   = "pg"
	EngineRest = "rest"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	DatabaseURL        string
	Engine             string
	EngineEndpoint     string
	IsolationLevel     transaction.IsolationLevel
	Interactive        transaction.InteractiveOptions
	StandaloneFallback bool
	LogLevel           string
	LogFormat          string
}

// LoadEnvFiles loads .env and .env.local, or the given files. Missing
// files are ignored and variables already set are kept.
func LoadEnvFiles(files ...string) {
	if len(files) == 0 {
		files = []string{".env", ".env.local"}
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// New returns a viper instance reading ASCETICOPS_* environment variables,
// with dashes in keys mapped to underscores.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(EngineKey, EnginePg)
	v.SetDefault(MaxWaitKey, transaction.DefaultMaxWait)
	v.SetDefault(TimeoutKey, transaction.DefaultTimeout)
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(LogFormatKey, "text")
	return v
}

// SetupFlags adds the configuration flags to cmd. Bind them with
// v.BindPFlags(cmd.PersistentFlags()).
func SetupFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String(DatabaseURLKey, "", "PostgreSQL connection string")
	flags.String(EngineKey, EnginePg, "Engine to run operations with (pg or rest)")
	flags.String(EngineEndpointKey, "", "Query engine endpoint of the rest engine")
	flags.String(IsolationLevelKey, "", "Default isolation level of batches")
	flags.Duration(MaxWaitKey, transaction.DefaultMaxWait, "Maximum time to wait for an interactive transaction to start")
	flags.Duration(TimeoutKey, transaction.DefaultTimeout, "Maximum lifetime of an interactive transaction")
	flags.Bool(StandaloneFallbackKey, false, "Run batches with non-batchable operations one by one")
	flags.String(LogLevelKey, "info", "Log level (trace, debug, info, warn, error, none)")
	flags.String(LogFormatKey, "text", "Log format (text or json)")
}

// Load reads and validates the configuration.
func Load(v *viper.Viper) (*Config, error) {
	level, err := transaction.ParseIsolationLevel(v.GetString(IsolationLevelKey))
	if err != nil {
		return nil, err
	}
	c := &Config{
		DatabaseURL:    v.GetString(DatabaseURLKey),
		Engine:         strings.ToLower(v.GetString(EngineKey)),
		EngineEndpoint: v.GetString(EngineEndpointKey),
		IsolationLevel: level,
		Interactive: transaction.InteractiveOptions{
			MaxWait:        v.GetDuration(MaxWaitKey),
			Timeout:        v.GetDuration(TimeoutKey),
			IsolationLevel: level,
		},
		StandaloneFallback: v.GetBool(StandaloneFallbackKey),
		LogLevel:           v.GetString(LogLevelKey),
		LogFormat:          v.GetString(LogFormatKey),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	switch c.Engine {
	case EnginePg:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: %s is required for the pg engine", ErrInvalidConfig, DatabaseURLKey)
		}
	case EngineRest:
		if c.EngineEndpoint == "" {
			return fmt.Errorf("%w: %s is required for the rest engine", ErrInvalidConfig, EngineEndpointKey)
		}
	default:
		return fmt.Errorf("%w: unknown engine %q", ErrInvalidConfig, c.Engine)
	}
	if err := positive(MaxWaitKey, c.Interactive.MaxWait); err != nil {
		return err
	}
	return positive(TimeoutKey, c.Interactive.Timeout)
}

func positive(key string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidConfig, key, d)
	}
	return nil
}

func (c *Config) ClientOptions() client.Options {
	return client.Options{
		IsolationLevel:     c.IsolationLevel,
		StandaloneFallback: c.StandaloneFallback,
		Interactive:        c.Interactive,
	}
}
