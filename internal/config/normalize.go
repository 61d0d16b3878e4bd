package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var userKeySanitizer = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeStore()
	c.normalizePoll()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(os.Getenv("GENQUEUE_NTFY_TOPIC"))
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = 10
	}
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	if value, ok := os.LookupEnv("GENQUEUE_BASE_URL"); ok && strings.TrimSpace(value) != "" {
		c.Server.BaseURL = value
	}
	if c.Server.SessionCookie == "" {
		if value, ok := os.LookupEnv("GENQUEUE_SESSION"); ok {
			c.Server.SessionCookie = value
		}
	}
	if c.Server.CSRFToken == "" {
		if value, ok := os.LookupEnv("GENQUEUE_CSRF_TOKEN"); ok {
			c.Server.CSRFToken = value
		}
	}
	c.Server.BaseURL = strings.TrimRight(strings.TrimSpace(c.Server.BaseURL), "/")
	c.Server.SessionCookie = strings.TrimSpace(c.Server.SessionCookie)
	c.Server.CSRFToken = strings.TrimSpace(c.Server.CSRFToken)
	c.Server.CSRFHeader = strings.TrimSpace(c.Server.CSRFHeader)
	if c.Server.CSRFHeader == "" {
		c.Server.CSRFHeader = defaultCSRFHeader
	}
	if c.Server.TimeoutSeconds <= 0 {
		c.Server.TimeoutSeconds = defaultTimeoutSeconds
	}
	defaults := Default().Server
	normalizeEndpoints(&c.Server.Image, defaults.Image)
	normalizeEndpoints(&c.Server.Video, defaults.Video)
}

func normalizeEndpoints(e *Endpoints, fallback Endpoints) {
	fill := func(value *string, def string) {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			*value = def
		}
	}
	fill(&e.Submit, fallback.Submit)
	fill(&e.Status, fallback.Status)
	fill(&e.Completed, fallback.Completed)
	fill(&e.Persist, fallback.Persist)
	fill(&e.Clear, fallback.Clear)
	fill(&e.Remove, fallback.Remove)
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if value, ok := os.LookupEnv("GENQUEUE_USER"); ok && strings.TrimSpace(value) != "" {
		c.Store.UserKey = value
	}
	c.Store.UserKey = userKeySanitizer.ReplaceAllString(strings.TrimSpace(c.Store.UserKey), "_")
	if c.Store.UserKey == "" {
		c.Store.UserKey = defaultUserKey
	}
	c.Store.RedisAddr = strings.TrimSpace(c.Store.RedisAddr)
	if c.Store.RedisAddr == "" {
		c.Store.RedisAddr = defaultRedisAddr
	}
	c.Store.RedisPrefix = strings.TrimSpace(c.Store.RedisPrefix)
	if c.Store.RedisPrefix == "" {
		c.Store.RedisPrefix = defaultRedisPrefix
	}
	if c.Store.RedisTTLHours <= 0 {
		c.Store.RedisTTLHours = defaultRedisTTLHours
	}
}

func (c *Config) normalizePoll() {
	if c.Poll.InitialIntervalMS <= 0 {
		c.Poll.InitialIntervalMS = defaultInitialIntervalMS
	}
	if c.Poll.Multiplier <= 0 {
		c.Poll.Multiplier = defaultMultiplier
	}
	if c.Poll.MaxIntervalMS <= 0 {
		c.Poll.MaxIntervalMS = defaultMaxIntervalMS
	}
	if c.Poll.VideoIntervalMS <= 0 {
		c.Poll.VideoIntervalMS = defaultVideoIntervalMS
	}
	if c.Poll.HiddenFactor <= 0 {
		c.Poll.HiddenFactor = defaultHiddenFactor
	}
	if c.Poll.MaxAttempts <= 0 {
		c.Poll.MaxAttempts = defaultMaxAttempts
	}
	if c.Poll.SlowIntervalMS <= 0 {
		c.Poll.SlowIntervalMS = defaultSlowIntervalMS
	}
	if c.Poll.RetryIntervalMS <= 0 {
		c.Poll.RetryIntervalMS = defaultRetryIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
