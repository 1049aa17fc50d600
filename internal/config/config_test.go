package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultDBPath(t *testing.T) {
	t.Run("with XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "/custom/cache")
		if got, want := DefaultDBPath(), "/custom/cache/pullq/queue.db"; got != want {
			t.Errorf("DefaultDBPath() = %q, want %q", got, want)
		}
	})

	t.Run("without XDG_CACHE_HOME", func(t *testing.T) {
		t.Setenv("XDG_CACHE_HOME", "")
		path := DefaultDBPath()
		if !strings.HasSuffix(path, filepath.Join(".cache", "pullq", "queue.db")) {
			t.Errorf("DefaultDBPath() = %q, want suffix .cache/pullq/queue.db", path)
		}
	})
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"), false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxPasses != 5 {
		t.Errorf("MaxPasses = %d, want 5", cfg.MaxPasses)
	}
	if cfg.RunTimeout.Duration != 10*time.Minute {
		t.Errorf("RunTimeout = %v, want 10m", cfg.RunTimeout.Duration)
	}
	if cfg.HTTP.Method != "GET" {
		t.Errorf("HTTP.Method = %q, want GET", cfg.HTTP.Method)
	}
	if cfg.MaxConcurrent != 0 {
		t.Errorf("MaxConcurrent = %d, want 0 (unbounded)", cfg.MaxConcurrent)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "none.toml"), true); err == nil {
		t.Fatal("Load() error = nil, want error for missing explicit file")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
db_path = "/tmp/q.db"
output_dir = "/tmp/out"
max_concurrent = 4
max_passes = 2
pass_backoff = "500ms"
run_timeout = "1m"

[http]
timeout = "30s"
method = "post"
user_agent = "randomize"

[http.headers]
Authorization = "Bearer x"

[s3]
profile = "work"
region = "eu-west-1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/tmp/q.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.MaxConcurrent != 4 || cfg.MaxPasses != 2 {
		t.Errorf("MaxConcurrent/MaxPasses = %d/%d, want 4/2", cfg.MaxConcurrent, cfg.MaxPasses)
	}
	if cfg.PassBackoff.Duration != 500*time.Millisecond {
		t.Errorf("PassBackoff = %v", cfg.PassBackoff.Duration)
	}
	if cfg.HTTP.Timeout.Duration != 30*time.Second {
		t.Errorf("HTTP.Timeout = %v", cfg.HTTP.Timeout.Duration)
	}
	if cfg.HTTP.KeepAliveTimeout.Duration != 90*time.Second {
		t.Errorf("HTTP.KeepAliveTimeout = %v, want default 90s", cfg.HTTP.KeepAliveTimeout.Duration)
	}
	if cfg.HTTP.Method != "POST" {
		t.Errorf("HTTP.Method = %q, want POST", cfg.HTTP.Method)
	}
	if cfg.HTTP.Headers["Authorization"] != "Bearer x" {
		t.Errorf("HTTP.Headers = %v", cfg.HTTP.Headers)
	}
	if cfg.S3.Profile != "work" || cfg.S3.Region != "eu-west-1" {
		t.Errorf("S3 = %+v", cfg.S3)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`db_path = "/from/file.db"`), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PULLQ_DB", "/from/env.db")
	t.Setenv("PULLQ_MAX_CONCURRENT", "3")

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBPath != "/from/env.db" {
		t.Errorf("DBPath = %q, want env override", cfg.DBPath)
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d, want 3", cfg.MaxConcurrent)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative concurrency", func(c *Config) { c.MaxConcurrent = -1 }, true},
		{"negative passes", func(c *Config) { c.MaxPasses = -1 }, true},
		{"bad method", func(c *Config) { c.HTTP.Method = "PUT" }, true},
		{"empty db", func(c *Config) { c.DBPath = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
