package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Fetch   FetchConfig   `mapstructure:"fetch" yaml:"fetch"`
	HLS     HLSConfig     `mapstructure:"hls" yaml:"hls"`
	Worker  WorkerConfig  `mapstructure:"worker" yaml:"worker"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	MaxConns    int32  `mapstructure:"max_conns" yaml:"max_conns"`
}

type StorageConfig struct {
	Root          string `mapstructure:"root" yaml:"root"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Attempts          int           `mapstructure:"attempts" yaml:"attempts"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	MaxBodyBytes      int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
}

type HLSConfig struct {
	MaxVariants    int `mapstructure:"max_variants" yaml:"max_variants"`
	SegmentWorkers int `mapstructure:"segment_workers" yaml:"segment_workers"`
}

type WorkerConfig struct {
	Schedule    string        `mapstructure:"schedule" yaml:"schedule"`
	BatchSize   int           `mapstructure:"batch_size" yaml:"batch_size"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	SweepAfter  time.Duration `mapstructure:"sweep_after" yaml:"sweep_after"`
}

type APIConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

// Load reads path (default config.yaml), then .env, then MEDIAQ_* variables.
// A missing default file is not an error; defaults and the environment apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if explicit {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		// Docker images mount their config under /config
		if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
			path = "/config/config.yaml"
		} else {
			path = ""
		}
	}

	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("MEDIAQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "./data/mediaq.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.max_conns", 8)

	v.SetDefault("storage.root", "./media")
	v.SetDefault("storage.public_base_url", "/media")

	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.attempts", 3)
	v.SetDefault("fetch.user_agent", "mediaq/1.0")
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.burst", 4)
	v.SetDefault("fetch.max_body_bytes", 512<<20)

	v.SetDefault("hls.max_variants", 1)
	v.SetDefault("hls.segment_workers", 4)

	v.SetDefault("worker.schedule", "@every 30s")
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.sweep_after", "0s")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.listen", ":8080")

	v.SetDefault("log.path", "mediaq.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}
	if c.Store.MaxConns <= 0 {
		c.Store.MaxConns = 8
	}

	if c.Storage.Root == "" {
		c.Storage.Root = "./media"
	}
	c.Storage.PublicBaseURL = strings.TrimRight(c.Storage.PublicBaseURL, "/")

	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.Attempts <= 0 {
		c.Fetch.Attempts = 1
	}
	if c.Fetch.RequestsPerSecond < 0 {
		return errors.New("fetch.requests_per_second cannot be negative")
	}

	if c.HLS.MaxVariants <= 0 {
		c.HLS.MaxVariants = 1
	}
	if c.HLS.SegmentWorkers <= 0 {
		c.HLS.SegmentWorkers = 1
	}

	if strings.TrimSpace(c.Worker.Schedule) == "" {
		c.Worker.Schedule = "@every 30s"
	}
	if c.Worker.BatchSize <= 0 {
		c.Worker.BatchSize = 1
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.SweepAfter < 0 {
		return errors.New("worker.sweep_after cannot be negative")
	}

	if c.API.Enabled && c.API.Listen == "" {
		return errors.New("api.listen is required when the api is enabled")
	}

	return nil
}
