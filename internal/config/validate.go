package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validatePoll(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.BaseURL == "" {
		return errors.New("server.base_url must be set")
	}
	parsed, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return fmt.Errorf("server.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.base_url must use http or https, got %q", c.Server.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("server.base_url is missing a host: %q", c.Server.BaseURL)
	}
	for name, endpoints := range map[string]Endpoints{"image": c.Server.Image, "video": c.Server.Video} {
		for field, path := range map[string]string{
			"submit":    endpoints.Submit,
			"status":    endpoints.Status,
			"completed": endpoints.Completed,
			"persist":   endpoints.Persist,
			"clear":     endpoints.Clear,
			"remove":    endpoints.Remove,
		} {
			if !strings.HasPrefix(path, "/") {
				return fmt.Errorf("server.%s.%s must start with '/', got %q", name, field, path)
			}
		}
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite", "memory":
	case "redis":
		if c.Store.RedisDB < 0 {
			return errors.New("store.redis_db must be non-negative")
		}
	default:
		return fmt.Errorf("store.backend: unsupported value %q (expected sqlite, redis, or memory)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validatePoll() error {
	if c.Poll.Multiplier < 1 {
		return errors.New("poll.multiplier must be at least 1")
	}
	if c.Poll.MaxIntervalMS < c.Poll.InitialIntervalMS {
		return errors.New("poll.max_interval_ms must be >= poll.initial_interval_ms")
	}
	if c.Poll.HiddenFactor < 1 {
		return errors.New("poll.hidden_factor must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	parsed, err := url.Parse(topic)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic: must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
