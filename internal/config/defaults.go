package config

const (
	defaultConfigPath     = "~/.config/nodeipc/config.toml"
	projectConfigName     = "nodeipc.toml"
	defaultTimeoutSeconds = 10
	defaultRetryAttempts  = 1
	defaultRetryBackoffMS = 250
	defaultJournalPath    = "~/.local/share/nodeipc/journal.db"
	defaultLogFormat      = "console"
	defaultLogLevel       = "warn"
	maxRetryAttempts      = 10
	maxTimeoutSeconds     = 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Endpoint: Endpoint{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Retry: Retry{
			Attempts:      defaultRetryAttempts,
			BackoffMillis: defaultRetryBackoffMS,
		},
		Journal: Journal{
			Enabled: true,
			Path:    defaultJournalPath,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
