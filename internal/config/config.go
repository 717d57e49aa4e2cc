// Package config loads, validates and persists the towercollector YAML
// configuration and applies environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultUploadURL      = "https://opencellid.org/measure/uploadCsv"
	DefaultAppID          = "towercollector"
	DefaultPartSize       = 400
	DefaultConnectTimeout = 30 * time.Second
	DefaultReadTimeout    = 30 * time.Second

	DefaultStoreDriver = DriverSQLite
	defaultStoreFile   = "measurements.db"

	DefaultExportFormat = "gpx"
	DefaultSegmentGap   = 30 * time.Minute

	DefaultServeListen   = "127.0.0.1:9464"
	DefaultServeInterval = time.Hour

	configFileName = "config.yaml"
	outputTypeFile = "file"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Part size limits shared by upload and export.
const (
	MinPartSize = 1
	MaxPartSize = 1000
)

// Environment variables that override configuration values.
const (
	EnvHome        = "TOWERCOLLECTOR_HOME"
	EnvAPIKey      = "TOWERCOLLECTOR_API_KEY"
	EnvLogLevel    = "TOWERCOLLECTOR_LOG_LEVEL"
	EnvLogFormat   = "TOWERCOLLECTOR_LOG_FORMAT"
	EnvStoreDriver = "TOWERCOLLECTOR_STORE_DRIVER"
	EnvStoreDSN    = "TOWERCOLLECTOR_STORE_DSN"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the root configuration document.
type Config struct {
	Upload  UploadConfig  `yaml:"upload"`
	Store   StoreConfig   `yaml:"store"`
	Export  ExportConfig  `yaml:"export"`
	Serve   ServeConfig   `yaml:"serve"`
	Logging LoggingConfig `yaml:"logging"`

	configPath string
}

// UploadConfig configures the OpenCellID upload client and the part size.
type UploadConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	AppID          string        `yaml:"app_id"`
	PartSize       int           `yaml:"part_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

// StoreConfig selects the measurement database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ExportConfig configures file exports.
type ExportConfig struct {
	Directory  string        `yaml:"directory"`
	Format     string        `yaml:"format"`
	SegmentGap time.Duration `yaml:"segment_gap"`
}

// ServeConfig configures the long-running upload daemon.
type ServeConfig struct {
	Listen   string        `yaml:"listen"`
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config populated with default values only.
func Default() *Config {
	dir, err := GetConfigDir()
	if err != nil {
		dir = "."
	}
	return &Config{
		Upload: UploadConfig{
			URL:            DefaultUploadURL,
			AppID:          DefaultAppID,
			PartSize:       DefaultPartSize,
			ConnectTimeout: DefaultConnectTimeout,
			ReadTimeout:    DefaultReadTimeout,
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
			DSN:    filepath.Join(dir, defaultStoreFile),
		},
		Export: ExportConfig{
			Directory:  filepath.Join(dir, "exports"),
			Format:     DefaultExportFormat,
			SegmentGap: DefaultSegmentGap,
		},
		Serve: ServeConfig{
			Listen:   DefaultServeListen,
			Interval: DefaultServeInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		configPath: filepath.Join(dir, configFileName),
	}
}

// New returns the defaults overlaid with the config file (if present) and
// the environment. A malformed config file is ignored in favor of defaults;
// use Load to observe the error.
func New() *Config {
	cfg := Default()
	if err := cfg.Load(cfg.configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: ignoring config file %s: %v\n", cfg.configPath, err)
	}
	cfg.ApplyEnv()
	return cfg
}

// Load reads the YAML file at path on top of the current values.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err = yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	c.configPath = path
	return nil
}

// ApplyEnv applies TOWERCOLLECTOR_* environment overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Upload.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv(EnvStoreDSN); v != "" {
		c.Store.DSN = v
	}
}

// ConfigPath returns the file the config was loaded from or will be saved to.
func (c *Config) ConfigPath() string {
	return c.configPath
}

// SetConfigPath changes the file used by Save.
func (c *Config) SetConfigPath(path string) {
	c.configPath = path
}

// Save writes the configuration as YAML. The file holds the API key, so it
// is created with owner-only permissions.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New("config path is not set")
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err = os.WriteFile(c.configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for semantic errors. The API key is not
// required here because commands other than upload do not need it.
func (c *Config) Validate() error {
	var errs []error

	if c.Upload.URL == "" {
		errs = append(errs, errors.New("upload.url is required"))
	} else if !strings.HasPrefix(c.Upload.URL, "http://") && !strings.HasPrefix(c.Upload.URL, "https://") {
		errs = append(errs, fmt.Errorf("upload.url must be an http(s) URL, got %q", c.Upload.URL))
	}
	if c.Upload.PartSize < MinPartSize || c.Upload.PartSize > MaxPartSize {
		errs = append(errs, fmt.Errorf("upload.part_size must be between %d and %d, got %d",
			MinPartSize, MaxPartSize, c.Upload.PartSize))
	}
	if c.Upload.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("upload.connect_timeout must be positive"))
	}
	if c.Upload.ReadTimeout <= 0 {
		errs = append(errs, errors.New("upload.read_timeout must be positive"))
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q",
			DriverSQLite, DriverPostgres, c.Store.Driver))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}

	switch c.Export.Format {
	case "gpx", "csv", "xlsx", "pdf":
	default:
		errs = append(errs, fmt.Errorf("export.format %q is not supported", c.Export.Format))
	}
	if c.Export.SegmentGap <= 0 {
		errs = append(errs, errors.New("export.segment_gap must be positive"))
	}

	if c.Serve.Interval < 0 {
		errs = append(errs, errors.New("serve.interval must not be negative"))
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ValidateForUpload additionally requires the API key.
func (c *Config) ValidateForUpload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Upload.APIKey) == "" {
		return fmt.Errorf("%w: upload.api_key is required (set it in %s or %s)",
			ErrInvalidConfig, c.configPath, EnvAPIKey)
	}
	return nil
}
