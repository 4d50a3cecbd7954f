package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Tasks       TasksConfig   `toml:"tasks"`
	OSS         OSSConfig     `toml:"oss"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// TasksConfig controls the task engine
type TasksConfig struct {
	PollInterval     string `toml:"poll_interval"`     // e.g., "1s" - how often idle workers poll for pending tasks
	Concurrency      int    `toml:"concurrency"`       // Number of concurrent workers
	MaxAttempts      int    `toml:"max_attempts"`      // Default max attempts when a submission omits it
	ProcessorTimeout string `toml:"processor_timeout"` // e.g., "5m" - deadline applied to each processor invocation
	Retention        string `toml:"retention"`         // e.g., "1h" - how long terminal tasks are kept before eviction
	SweepSchedule    string `toml:"sweep_schedule"`    // Cron schedule for the eviction sweep
}

// OSSConfig contains Aliyun object storage settings for the upload processor
type OSSConfig struct {
	Endpoint         string `toml:"endpoint"`
	AccessKeyID      string `toml:"access_key_id"`
	AccessKeySecret  string `toml:"access_key_secret"`
	Bucket           string `toml:"bucket"`
	BasePath         string `toml:"base_path"`          // Prefix prepended to every uploaded object key
	UploadsPerSecond int    `toml:"uploads_per_second"` // Rate limit for bucket puts
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in libris.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Tasks: TasksConfig{
			PollInterval:     "1s",
			Concurrency:      4,
			MaxAttempts:      3,
			ProcessorTimeout: "5m",
			Retention:        "1h",
			SweepSchedule:    "*/5 * * * *",
		},
		OSS: OSSConfig{
			BasePath:         "libris",
			UploadsPerSecond: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env -> CLI.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LIBRIS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("LIBRIS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LIBRIS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("LIBRIS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Task engine configuration
	if pollInterval := os.Getenv("LIBRIS_TASKS_POLL_INTERVAL"); pollInterval != "" {
		config.Tasks.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("LIBRIS_TASKS_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Tasks.Concurrency = c
		}
	}
	if maxAttempts := os.Getenv("LIBRIS_TASKS_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Tasks.MaxAttempts = ma
		}
	}
	if timeout := os.Getenv("LIBRIS_TASKS_PROCESSOR_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Tasks.ProcessorTimeout = timeout
		}
	}
	if retention := os.Getenv("LIBRIS_TASKS_RETENTION"); retention != "" {
		if _, err := time.ParseDuration(retention); err == nil {
			config.Tasks.Retention = retention
		}
	}
	if schedule := os.Getenv("LIBRIS_TASKS_SWEEP_SCHEDULE"); schedule != "" {
		config.Tasks.SweepSchedule = schedule
	}

	// OSS configuration
	if endpoint := os.Getenv("LIBRIS_OSS_ENDPOINT"); endpoint != "" {
		config.OSS.Endpoint = endpoint
	}
	if keyID := os.Getenv("LIBRIS_OSS_ACCESS_KEY_ID"); keyID != "" {
		config.OSS.AccessKeyID = keyID
	}
	if secret := os.Getenv("LIBRIS_OSS_ACCESS_KEY_SECRET"); secret != "" {
		config.OSS.AccessKeySecret = secret
	}
	if bucket := os.Getenv("LIBRIS_OSS_BUCKET"); bucket != "" {
		config.OSS.Bucket = bucket
	}
	if basePath := os.Getenv("LIBRIS_OSS_BASE_PATH"); basePath != "" {
		config.OSS.BasePath = basePath
	}

	// Logging configuration
	if level := os.Getenv("LIBRIS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LIBRIS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("LIBRIS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// PollIntervalDuration returns the parsed worker poll interval
func (c *TasksConfig) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// ProcessorTimeoutDuration returns the parsed per-processor deadline
func (c *TasksConfig) ProcessorTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ProcessorTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// RetentionDuration returns the parsed terminal-task retention window
func (c *TasksConfig) RetentionDuration() time.Duration {
	d, err := time.ParseDuration(c.Retention)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// ValidateSweepSchedule validates the eviction sweep cron expression
func ValidateSweepSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
