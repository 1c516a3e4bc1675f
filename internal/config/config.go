package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// DefaultPath is the configuration file read when no --config flag is given
const DefaultPath = "config/config.yaml"

type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	CORS    CORS    `yaml:"cors"`
	Log     Log     `yaml:"log"`
}

type Server struct {
	Port            int           `yaml:"port"`
	Prefix          string        `yaml:"prefix"`           // route prefix, e.g. /api
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

type Storage struct {
	Driver string `yaml:"driver"` // sqlite, mongo
	Path   string `yaml:"path"`   // sqlite data directory
	Mongo  Mongo  `yaml:"mongo"`
}

type Mongo struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	Collection     string        `yaml:"collection"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Log struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	Filename   string `yaml:"filename"`    // log file path, empty for stdout only
	MaxSize    int    `yaml:"max_size"`    // megabytes
	MaxBackups int    `yaml:"max_backups"` // number of backups
	MaxAge     int    `yaml:"max_age"`     // days
	Compress   bool   `yaml:"compress"`    // compress rotated files
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		Server: Server{
			Port:            5000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Storage: Storage{
			Driver: DriverSQLite,
			Path:   "data",
			Mongo: Mongo{
				Database:       "repo_catalog",
				Collection:     "repos",
				ConnectTimeout: 10 * time.Second,
			},
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
		},
		Log: Log{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// LoadFromFile loads the configuration from the specified file, then applies
// variables from a .env file and the process environment. A missing file is
// not an error.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Variables already set in the environment win over .env
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from environment variables
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("ROUTE_PREFIX"); v != "" {
		c.Server.Prefix = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Storage.Mongo.URI = v
		// A bare MONGO_URI selects the mongo driver
		if os.Getenv("STORAGE_DRIVER") == "" {
			c.Storage.Driver = DriverMongo
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.Filename = v
	}
	return nil
}

// Validate checks the configuration for settings the server cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return errors.New("storage.mongo.uri (or MONGO_URI) is required for the mongo driver")
		}
		if c.Storage.Mongo.Database == "" || c.Storage.Mongo.Collection == "" {
			return errors.New("storage.mongo.database and storage.mongo.collection are required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
