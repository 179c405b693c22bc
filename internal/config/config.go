package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gitter-badger/urfiles/shared/db/sqlite"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultShutdownTimeout = 5 * time.Second
	defaultLogLevel        = "info"
	defaultDatabaseFile    = "urfiles.db"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"
)

// Environment variables that override the configuration file.
const (
	EnvBaseDirectory   = "URFILES_BASE_DIRECTORY"
	EnvPort            = "URFILES_PORT"
	EnvDatabasePath    = "SQLITE_DB_PATH"
	EnvLogLevel        = "URFILES_LOG_LEVEL"
	EnvLogFormat       = "URFILES_LOG_FORMAT"
	EnvShutdownTimeout = "URFILES_SHUTDOWN_TIMEOUT"
)

type Config struct {
	// BaseDirectory holds one subdirectory per service. Required.
	BaseDirectory string `yaml:"baseDirectory"`
	Port          int    `yaml:"port"`
	// DatabasePath defaults to urfiles.db inside BaseDirectory.
	DatabasePath    string        `yaml:"databasePath"`
	LogLevel        string        `yaml:"logLevel"`
	LogFormat       string        `yaml:"logFormat"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// Load reads a .env file if present, then the YAML file at path (optional),
// then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env file")
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes a YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseDirectory); v != "" {
		c.BaseDirectory = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Port = port
	}
	if v := os.Getenv(EnvShutdownTimeout); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvShutdownTimeout, v, err)
		}
		c.ShutdownTimeout = timeout
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DatabasePath == "" && c.BaseDirectory != "" {
		c.DatabasePath = filepath.Join(c.BaseDirectory, defaultDatabaseFile)
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.BaseDirectory == "" {
		errs = append(errs, errors.New("baseDirectory is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid logLevel %q", c.LogLevel))
	}
	if c.LogFormat != LogFormatJSON && c.LogFormat != LogFormatConsole {
		errs = append(errs, fmt.Errorf("logFormat must be %q or %q", LogFormatJSON, LogFormatConsole))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("shutdownTimeout cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) SQLite() *sqlite.SQLiteConfig {
	return &sqlite.SQLiteConfig{Path: c.DatabasePath}
}

// Level returns the parsed log level, info if it cannot be parsed.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
