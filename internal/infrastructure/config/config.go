// Package config provides configuration loading for the trailsync application.
// Settings come from an optional YAML file named by TRAILSYNC_CONFIG, and
// environment variables override anything the file sets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// Environment variable names.
const (
	// EnvConfigFile is the path to an optional YAML configuration file.
	EnvConfigFile = "TRAILSYNC_CONFIG"

	// EnvRemote is the remote every repository synchronizes with.
	EnvRemote = "TRAILSYNC_REMOTE"

	// EnvGitBinary is the git executable used for network operations and commits.
	EnvGitBinary = "TRAILSYNC_GIT_BINARY"

	// EnvCommandTimeout bounds each git command (Go duration syntax).
	EnvCommandTimeout = "TRAILSYNC_COMMAND_TIMEOUT"

	// EnvPollInterval is the push consumer's idle wait (Go duration syntax).
	EnvPollInterval = "TRAILSYNC_POLL_INTERVAL"

	// EnvQueueCapacity bounds the number of repositories awaiting push.
	EnvQueueCapacity = "TRAILSYNC_QUEUE_CAPACITY"

	// EnvDebounce is the quiet period before a file change counts as a save.
	EnvDebounce = "TRAILSYNC_DEBOUNCE"

	// EnvCommitTemplate is the commit message template; %s is the file name.
	EnvCommitTemplate = "TRAILSYNC_COMMIT_TEMPLATE"

	// EnvLogLevel is the log level (debug, info, warn, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvLogFile enables a rotated log file at the given path.
	EnvLogFile = "TRAILSYNC_LOG_FILE"

	// EnvLogMaxSizeMB is the log file size that triggers rotation.
	EnvLogMaxSizeMB = "TRAILSYNC_LOG_MAX_SIZE_MB"

	// EnvLogMaxBackups is the number of rotated log files kept.
	EnvLogMaxBackups = "TRAILSYNC_LOG_MAX_BACKUPS"

	// EnvLogMaxAgeDays is the number of days rotated log files are kept.
	EnvLogMaxAgeDays = "TRAILSYNC_LOG_MAX_AGE_DAYS"
)

// Default values.
const (
	DefaultGitBinary     = "git"
	DefaultDebounce      = 500 * time.Millisecond
	DefaultLogLevel      = "info"
	DefaultLogAppName    = "trailsync"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// Configuration errors.
var (
	// ErrInvalidConfig indicates a setting could not be parsed or is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)

// Config holds all application configuration.
type Config struct {
	// Remote is the remote name used for fetch and push.
	Remote string

	// GitBinary is the git executable.
	GitBinary string

	// CommandTimeout bounds each git command.
	CommandTimeout time.Duration

	// PollInterval is how long the push consumer idles on an empty queue.
	PollInterval time.Duration

	// QueueCapacity bounds the push queue.
	QueueCapacity int

	// Debounce is the quiet period after a write before a save is reported.
	Debounce time.Duration

	// CommitTemplate formats commit messages.
	CommitTemplate string

	// LogLevel is the logging level.
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string

	// LogFile, when set, receives a copy of the log rotated by size.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

// fileConfig mirrors Config in the YAML file. Durations use Go syntax ("2s").
type fileConfig struct {
	Remote         string `yaml:"remote"`
	GitBinary      string `yaml:"git_binary"`
	CommandTimeout string `yaml:"command_timeout"`
	PollInterval   string `yaml:"poll_interval"`
	QueueCapacity  int    `yaml:"queue_capacity"`
	Debounce       string `yaml:"debounce"`
	CommitTemplate string `yaml:"commit_template"`
	LogLevel       string `yaml:"log_level"`
	LogAppName     string `yaml:"log_app_name"`
	LogFile        string `yaml:"log_file"`
	LogMaxSizeMB   int    `yaml:"log_max_size_mb"`
	LogMaxBackups  int    `yaml:"log_max_backups"`
	LogMaxAgeDays  int    `yaml:"log_max_age_days"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Remote:         domain.DefaultRemote,
		GitBinary:      DefaultGitBinary,
		CommandTimeout: domain.DefaultCommandTimeout,
		PollInterval:   domain.DefaultPollInterval,
		QueueCapacity:  domain.DefaultQueueCapacity,
		Debounce:       DefaultDebounce,
		CommitTemplate: domain.DefaultCommitTemplate,
		LogLevel:       DefaultLogLevel,
		LogAppName:     DefaultLogAppName,
		LogMaxSizeMB:   DefaultLogMaxSizeMB,
		LogMaxBackups:  DefaultLogMaxBackups,
		LogMaxAgeDays:  DefaultLogMaxAgeDays,
	}
}

// Load loads the application configuration from the process environment.
func Load() (*Config, error) {
	return LoadWithLookup(os.Getenv)
}

// LoadWithLookup loads configuration using getenv to read variables.
// This function enables dependency injection for testing.
func LoadWithLookup(getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	if path := getenv(EnvConfigFile); path != "" {
		file, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(file); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that settings are within range.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Remote) == "":
		return fmt.Errorf("%w: remote must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.GitBinary) == "":
		return fmt.Errorf("%w: git binary must not be empty", ErrInvalidConfig)
	case c.CommandTimeout <= 0:
		return fmt.Errorf("%w: command timeout must be positive", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("%w: queue capacity must be positive", ErrInvalidConfig)
	case c.Debounce <= 0:
		return fmt.Errorf("%w: debounce must be positive", ErrInvalidConfig)
	case c.LogMaxSizeMB < 0 || c.LogMaxBackups < 0 || c.LogMaxAgeDays < 0:
		return fmt.Errorf("%w: log rotation settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// loadConfigFile loads the YAML configuration file at path.
func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid YAML: %w", ErrInvalidConfig, path, err)
	}
	return &file, nil
}

func (c *Config) applyFile(f *fileConfig) error {
	setString(&c.Remote, f.Remote)
	setString(&c.GitBinary, f.GitBinary)
	setString(&c.CommitTemplate, f.CommitTemplate)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogAppName, f.LogAppName)
	setString(&c.LogFile, f.LogFile)
	setInt(&c.QueueCapacity, f.QueueCapacity)
	setInt(&c.LogMaxSizeMB, f.LogMaxSizeMB)
	setInt(&c.LogMaxBackups, f.LogMaxBackups)
	setInt(&c.LogMaxAgeDays, f.LogMaxAgeDays)

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"command_timeout", f.CommandTimeout, &c.CommandTimeout},
		{"poll_interval", f.PollInterval, &c.PollInterval},
		{"debounce", f.Debounce, &c.Debounce},
	}
	for _, d := range durations {
		if err := parseDuration(d.name, d.value, d.dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString(&c.Remote, getenv(EnvRemote))
	setString(&c.GitBinary, getenv(EnvGitBinary))
	setString(&c.CommitTemplate, getenv(EnvCommitTemplate))
	setString(&c.LogLevel, getenv(EnvLogLevel))
	setString(&c.LogAppName, getenv(EnvLogAppName))
	setString(&c.LogFile, getenv(EnvLogFile))

	for name, dst := range map[string]*time.Duration{
		EnvCommandTimeout: &c.CommandTimeout,
		EnvPollInterval:   &c.PollInterval,
		EnvDebounce:       &c.Debounce,
	} {
		if err := parseDuration(name, getenv(name), dst); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*int{
		EnvQueueCapacity: &c.QueueCapacity,
		EnvLogMaxSizeMB:  &c.LogMaxSizeMB,
		EnvLogMaxBackups: &c.LogMaxBackups,
		EnvLogMaxAgeDays: &c.LogMaxAgeDays,
	} {
		if err := parseInt(name, getenv(name), dst); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value != 0 {
		*dst = value
	}
}

func parseDuration(name, value string, dst *time.Duration) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, name, value, err)
	}
	*dst = d
	return nil
}

func parseInt(name, value string, dst *int) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, name, value, err)
	}
	*dst = n
	return nil
}
