// Package config loads core configuration from environment variables, with an
// optional .env file for development builds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all tunables for the client core.
type Config struct {
	API     APIConfig
	Storage StorageConfig
	Jobs    JobsConfig
	Sync    SyncConfig
	Logging LoggingConfig
}

type APIConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

type StorageConfig struct {
	DataDir string
}

type JobsConfig struct {
	MaxConcurrent   int
	PollInterval    time.Duration
	MaxPollAttempts int
	DedupWindow     time.Duration
}

type SyncConfig struct {
	MaxRetries        int
	StartupProbeDelay time.Duration
}

type LoggingConfig struct {
	Level string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	// Best effort: mobile builds ship no .env file.
	_ = godotenv.Load()

	cfg := &Config{
		API: APIConfig{
			BaseURL: getEnv("SNAPNOTE_API_URL", "http://localhost:8000/api/v1"),
			Token:   getEnv("SNAPNOTE_API_TOKEN", ""),
			Timeout: getEnvDuration("SNAPNOTE_API_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			DataDir: getEnv("SNAPNOTE_DATA_DIR", defaultDataDir()),
		},
		Jobs: JobsConfig{
			MaxConcurrent:   getEnvInt("SNAPNOTE_MAX_CONCURRENT_JOBS", 3),
			PollInterval:    getEnvDuration("SNAPNOTE_POLL_INTERVAL", 2*time.Second),
			MaxPollAttempts: getEnvInt("SNAPNOTE_MAX_POLL_ATTEMPTS", 45),
			DedupWindow:     getEnvDuration("SNAPNOTE_DEDUP_WINDOW", 5*time.Second),
		},
		Sync: SyncConfig{
			MaxRetries:        getEnvInt("SNAPNOTE_SYNC_MAX_RETRIES", 5),
			StartupProbeDelay: getEnvDuration("SNAPNOTE_STARTUP_PROBE_DELAY", 3*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("SNAPNOTE_LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API base URL must not be empty")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent jobs must be >= 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Jobs.PollInterval)
	}
	if c.Jobs.MaxPollAttempts < 1 {
		return fmt.Errorf("max poll attempts must be >= 1, got %d", c.Jobs.MaxPollAttempts)
	}
	if c.Sync.MaxRetries < 1 {
		return fmt.Errorf("sync max retries must be >= 1, got %d", c.Sync.MaxRetries)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snapnote"
	}
	return home + "/.snapnote"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
