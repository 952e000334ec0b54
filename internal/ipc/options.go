package ipc

import (
	"log/slog"
	"time"

	"nodeipc/internal/endpoint"
	"nodeipc/internal/logging"
)

// DefaultTimeout bounds a round trip when no WithTimeout option is given.
const DefaultTimeout = 10 * time.Second

// Option customizes a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request deadline. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Provider) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithEnvironment replaces the process snapshot used for home expansion and
// default endpoint resolution.
func WithEnvironment(env endpoint.Environment) Option {
	return func(p *Provider) {
		p.env = env
	}
}

// WithLogger routes provider diagnostics to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logging.NewComponentLogger(logger, "ipc")
		}
	}
}

// WithStrictIDs rejects single replies whose id differs from the request id.
func WithStrictIDs(strict bool) Option {
	return func(p *Provider) {
		p.strictIDs = strict
	}
}

// WithDialer overrides how the byte stream is opened.
func WithDialer(dial Dialer) Option {
	return func(p *Provider) {
		if dial != nil {
			p.dial = dial
		}
	}
}
