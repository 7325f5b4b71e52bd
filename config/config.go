package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "GITINDEX"

	EnvironmentDev  = "dev"
	EnvironmentProd = "prod"

	DefaultRefreshInterval = 5 * time.Minute
	DefaultDatabasePath    = "./gitindex.db"
	DefaultCacheSize       = 64 << 20
)

var (
	ErrMissingScanPath     = errors.New("index.scan_path is required")
	ErrMissingDatabasePath = errors.New("database.path is required")
	ErrInvalidInterval     = errors.New("index.refresh_interval must be positive")
	ErrInvalidEnvironment  = errors.New("environment must be dev or prod")
)

// Config is the full runtime configuration of the indexer
type Config struct {
	Environment string   `mapstructure:"environment"`
	Index       Index    `mapstructure:"index"`
	Database    Database `mapstructure:"database"`
	Metrics     Metrics  `mapstructure:"metrics"`
}

// Index controls what is scanned and how often
type Index struct {
	ScanPath        string        `mapstructure:"scan_path"`
	ProjectsList    string        `mapstructure:"projects_list"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// Database controls the embedded key-value store
type Database struct {
	Path      string `mapstructure:"path"`
	CacheSize int64  `mapstructure:"cache_size"`
}

// Metrics controls export of run metrics. An empty Textfile disables export.
type Metrics struct {
	Textfile string `mapstructure:"textfile"`
}

// IsDev reports whether the process runs in development mode
func (c *Config) IsDev() bool {
	return c.Environment == EnvironmentDev
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvironmentDev, EnvironmentProd:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidEnvironment, c.Environment)
	}
	if c.Index.ScanPath == "" {
		return ErrMissingScanPath
	}
	if c.Database.Path == "" {
		return ErrMissingDatabasePath
	}
	if c.Index.RefreshInterval <= 0 {
		return ErrInvalidInterval
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvironmentProd)
	v.SetDefault("index.scan_path", "")
	v.SetDefault("index.projects_list", "")
	v.SetDefault("index.refresh_interval", DefaultRefreshInterval)
	v.SetDefault("index.run_on_start", true)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.cache_size", DefaultCacheSize)
	v.SetDefault("metrics.textfile", "")
}

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"scan-path":        "index.scan_path",
	"projects-list":    "index.projects_list",
	"refresh-interval": "index.refresh_interval",
	"db-path":          "database.path",
	"metrics-textfile": "metrics.textfile",
	"env":              "environment",
}

// Load reads configuration from file (optional), GITINDEX_* environment
// variables and command line flags, in increasing order of precedence.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
