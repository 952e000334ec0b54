package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEndpoint(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateEndpoint() error {
	if c.Endpoint.TimeoutSeconds <= 0 {
		return errors.New("endpoint.timeout_seconds must be positive")
	}
	if c.Endpoint.TimeoutSeconds > maxTimeoutSeconds {
		return fmt.Errorf("endpoint.timeout_seconds must be at most %d", maxTimeoutSeconds)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts < 1 || c.Retry.Attempts > maxRetryAttempts {
		return fmt.Errorf("retry.attempts must be between 1 and %d", maxRetryAttempts)
	}
	if c.Retry.BackoffMillis < 0 {
		return errors.New("retry.backoff_ms must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}
