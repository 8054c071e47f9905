package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database is the SQLite file holding every topic map.
	Database string
	// TopicMap is the locator of the topic map commands operate on.
	TopicMap string

	Env      string
	LogLevel string

	// Automerge merges topics on identity collisions instead of failing.
	Automerge bool
	// LockFile serialises write transactions across processes.
	LockFile bool
}

// fileConfig mirrors the HCL file layout. Pointers distinguish "unset" from
// the zero value so the file only overrides what it mentions.
type fileConfig struct {
	Database *string       `hcl:"database,optional"`
	TopicMap *string       `hcl:"topic_map,optional"`
	Env      *string       `hcl:"env,optional"`
	LogLevel *string       `hcl:"log_level,optional"`
	Features *fileFeatures `hcl:"features,block"`
}

type fileFeatures struct {
	Automerge *bool `hcl:"automerge,optional"`
	LockFile  *bool `hcl:"lock_file,optional"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database:  "tmengine.db",
		TopicMap:  "http://localhost/default",
		Env:       "development",
		LogLevel:  "",
		Automerge: true,
		LockFile:  true,
	}
}

// Load builds the configuration from, in increasing precedence: defaults, the
// HCL file at path (skipped when path is empty), a .env file in the working
// directory, and TM_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		var fc fileConfig
		if err := hclsimple.DecodeFile(path, nil, &fc); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		cfg.apply(&fc)
	}

	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg.Database = getEnv("TM_DATABASE", cfg.Database)
	cfg.TopicMap = getEnv("TM_TOPIC_MAP", cfg.TopicMap)
	cfg.Env = getEnv("TM_ENV", cfg.Env)
	cfg.LogLevel = getEnv("TM_LOG_LEVEL", cfg.LogLevel)
	cfg.Automerge = getEnvBool("TM_AUTOMERGE", cfg.Automerge)
	cfg.LockFile = getEnvBool("TM_LOCK_FILE", cfg.LockFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) apply(fc *fileConfig) {
	if fc.Database != nil {
		c.Database = *fc.Database
	}
	if fc.TopicMap != nil {
		c.TopicMap = *fc.TopicMap
	}
	if fc.Env != nil {
		c.Env = *fc.Env
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}
	if fc.Features != nil {
		if fc.Features.Automerge != nil {
			c.Automerge = *fc.Features.Automerge
		}
		if fc.Features.LockFile != nil {
			c.LockFile = *fc.Features.LockFile
		}
	}
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.TopicMap == "" {
		return fmt.Errorf("topic_map is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
