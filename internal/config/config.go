package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration decodes Go duration strings ("30s", "10m") from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type HTTPConfig struct {
	Timeout          Duration          `toml:"timeout"`
	KeepAliveTimeout Duration          `toml:"keep_alive_timeout"`
	Proxy            string            `toml:"proxy"`
	ProxyUsername    string            `toml:"proxy_username"`
	ProxyPassword    string            `toml:"proxy_password"`
	UserAgent        string            `toml:"user_agent"`
	Method           string            `toml:"method"`
	Headers          map[string]string `toml:"headers"`
}

type S3Config struct {
	Profile string `toml:"profile"`
	Region  string `toml:"region"`
}

// Config holds application configuration.
type Config struct {
	DBPath        string     `toml:"db_path"`
	OutputDir     string     `toml:"output_dir"`
	MaxConcurrent int        `toml:"max_concurrent"` // 0 means one goroutine per eligible item
	MaxPasses     int        `toml:"max_passes"`     // 0 means drain until empty
	PassBackoff   Duration   `toml:"pass_backoff"`
	RunTimeout    Duration   `toml:"run_timeout"`
	RunRetries    int        `toml:"run_retries"`
	Simulate      bool       `toml:"simulate"`
	Debug         bool       `toml:"debug"`
	HTTP          HTTPConfig `toml:"http"`
	S3            S3Config   `toml:"s3"`
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "pullq", "queue.db")
}

// DefaultConfigPath returns the config file location using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "pullq", "config.toml")
}

func Default() *Config {
	return &Config{
		DBPath:      DefaultDBPath(),
		OutputDir:   ".",
		MaxPasses:   5,
		PassBackoff: Duration{2 * time.Second},
		RunTimeout:  Duration{10 * time.Minute},
		RunRetries:  3,
		HTTP: HTTPConfig{
			Timeout:          Duration{3 * time.Minute},
			KeepAliveTimeout: Duration{90 * time.Second},
			Method:           "GET",
			Headers:          map[string]string{},
		},
		S3: S3Config{Profile: "default"},
	}
}

// Load builds the config from defaults, the TOML file at path and PULLQ_*
// environment variables, in that order. A missing file is only an error
// when explicit is true.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicit {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PULLQ_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("PULLQ_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("PULLQ_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PULLQ_MAX_CONCURRENT: %w", err)
		}
		c.MaxConcurrent = n
	}
	if v := os.Getenv("PULLQ_RUN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PULLQ_RUN_TIMEOUT: %w", err)
		}
		c.RunTimeout = Duration{d}
	}
	if v := os.Getenv("PULLQ_PROXY"); v != "" {
		c.HTTP.Proxy = v
	}
	if v := os.Getenv("PULLQ_S3_PROFILE"); v != "" {
		c.S3.Profile = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path must not be empty")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent must be >= 0, got %d", c.MaxConcurrent)
	}
	if c.MaxPasses < 0 {
		return fmt.Errorf("max_passes must be >= 0, got %d", c.MaxPasses)
	}
	if c.RunRetries < 0 {
		return fmt.Errorf("run_retries must be >= 0, got %d", c.RunRetries)
	}
	c.HTTP.Method = strings.ToUpper(c.HTTP.Method)
	switch c.HTTP.Method {
	case "":
		c.HTTP.Method = "GET"
	case "GET", "POST":
	default:
		return fmt.Errorf("http.method must be GET or POST, got %q", c.HTTP.Method)
	}
	return nil
}
