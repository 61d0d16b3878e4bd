package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Endpoints lists the server routes used by one generation variant.
// Status and Persist paths receive the job id appended as a final segment.
type Endpoints struct {
	Submit    string `toml:"submit"`
	Status    string `toml:"status"`
	Completed string `toml:"completed"`
	Persist   string `toml:"persist"`
	Clear     string `toml:"clear"`
	Remove    string `toml:"remove"`
}

// Server contains connection settings for the generation gallery.
type Server struct {
	BaseURL        string    `toml:"base_url"`
	SessionCookie  string    `toml:"session_cookie"`
	CSRFToken      string    `toml:"csrf_token"`
	CSRFHeader     string    `toml:"csrf_header"`
	TimeoutSeconds int       `toml:"timeout_seconds"`
	Image          Endpoints `toml:"image"`
	Video          Endpoints `toml:"video"`
}

// Store contains configuration for the local queue cache.
type Store struct {
	Backend       string `toml:"backend"`
	UserKey       string `toml:"user_key"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
	RedisTTLHours int    `toml:"redis_ttl_hours"`
}

// Poll contains status polling cadence, expressed in milliseconds.
type Poll struct {
	InitialIntervalMS int     `toml:"initial_interval_ms"`
	Multiplier        float64 `toml:"multiplier"`
	MaxIntervalMS     int     `toml:"max_interval_ms"`
	VideoIntervalMS   int     `toml:"video_interval_ms"`
	HiddenFactor      float64 `toml:"hidden_factor"`
	MaxAttempts       int     `toml:"max_attempts"`
	SlowIntervalMS    int     `toml:"slow_interval_ms"`
	RetryIntervalMS   int     `toml:"retry_interval_ms"`
}

// Notifications contains ntfy settings. An empty topic disables notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for genqueue.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Server: gallery base URL, credentials, and per-variant endpoints
//   - Store: local queue cache backend and per-user namespace
//   - Poll: status polling cadence
//   - Notifications: optional ntfy topic for finished jobs
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Store         Store         `toml:"store"`
	Poll          Poll          `toml:"poll"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/genqueue/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, fmt.Errorf("config file %q not found", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("genqueue.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the SQLite file backing the local queue cache.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LogPath returns the file the CLI appends its log to.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "genqueue.log")
}

// LockPath returns the lock file guarding a single watcher per variant.
func (c *Config) LockPath(kind string) string {
	return filepath.Join(c.Paths.StateDir, fmt.Sprintf("watch-%s-%s.lock", kind, c.Store.UserKey))
}

// RequestTimeout returns the HTTP client timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
