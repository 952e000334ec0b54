package config

import (
	"fmt"
	"os"
	"strings"

	"nodeipc/internal/endpoint"
)

func (c *Config) normalize() error {
	if err := c.normalizeEndpoint(); err != nil {
		return err
	}
	if err := c.normalizeJournal(); err != nil {
		return err
	}
	return c.normalizeLogging()
}

// normalizeEndpoint only expands "~": named pipe paths must not be made
// absolute against the working directory.
func (c *Config) normalizeEndpoint() error {
	c.Endpoint.Path = strings.TrimSpace(c.Endpoint.Path)
	if strings.HasPrefix(c.Endpoint.Path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("endpoint.path: resolve home directory: %w", err)
		}
		expanded, err := endpoint.ExpandHome(c.Endpoint.Path, home)
		if err != nil {
			return fmt.Errorf("endpoint.path: %w", err)
		}
		c.Endpoint.Path = expanded
	}
	if c.Endpoint.TimeoutSeconds == 0 {
		c.Endpoint.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = defaultRetryAttempts
	}
	return nil
}

func (c *Config) normalizeJournal() error {
	c.Journal.Path = strings.TrimSpace(c.Journal.Path)
	if c.Journal.Path == "" {
		c.Journal.Path = defaultJournalPath
	}
	var err error
	if c.Journal.Path, err = expandPath(c.Journal.Path); err != nil {
		return fmt.Errorf("journal.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() error {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		expanded, err := expandPath(file)
		if err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
		c.Logging.File = expanded
	}
	return nil
}
