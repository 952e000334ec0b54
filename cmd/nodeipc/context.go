package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nodeipc/internal/config"
	"nodeipc/internal/endpoint"
	"nodeipc/internal/ipc"
	"nodeipc/internal/ipcmetrics"
	"nodeipc/internal/journal"
	"nodeipc/internal/logging"
	"nodeipc/internal/retry"
)

type commandContext struct {
	flags     *rootFlags
	sessionID string
	env       endpoint.Environment

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	journalOnce sync.Once
	journal     *journal.Store
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{
		flags:     flags,
		sessionID: uuid.NewString(),
		env:       endpoint.FromProcess(),
	}
}

// ensureConfig loads the config file once and layers command-line flags on
// top of it.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := c.applyFlags(cfg); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) applyFlags(cfg *config.Config) error {
	if value := strings.TrimSpace(c.flags.endpoint); value != "" {
		cfg.Endpoint.Path = value
		cfg.Endpoint.Dev = false
	}
	if c.flags.dev {
		cfg.Endpoint.Path = ""
		cfg.Endpoint.Dev = true
	}
	if c.flags.timeout < 0 {
		return errors.New("--timeout must not be negative")
	}
	if c.flags.timeout > 0 {
		cfg.Endpoint.TimeoutSeconds = int((c.flags.timeout + time.Second - 1) / time.Second)
	}
	if level := strings.TrimSpace(c.flags.logLevel); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	return cfg.Validate()
}

func (c *commandContext) timeout() time.Duration {
	if c.flags.timeout > 0 {
		return c.flags.timeout
	}
	if c.config != nil {
		return c.config.Timeout()
	}
	return ipc.DefaultTimeout
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config, c.sessionID)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// endpointPath returns the endpoint the provider should target; empty means
// the platform default.
func (c *commandContext) endpointPath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.EndpointPath(c.env)
}

func (c *commandContext) newProvider() (*ipc.Provider, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	path, err := c.endpointPath()
	if err != nil {
		return nil, &ipc.Error{Kind: ipc.KindConfiguration, Op: "resolve", Err: err}
	}
	return ipc.NewProvider(path,
		ipc.WithEnvironment(c.env),
		ipc.WithTimeout(c.timeout()),
		ipc.WithLogger(c.log()),
		ipc.WithStrictIDs(cfg.Endpoint.StrictIDs),
	)
}

// client is the requester stack a command talks to.
type client struct {
	ipc.Requester
	endpoint string
	close    func() error
}

// newClient builds a provider, wrapped in the retry decorator when retries
// are configured and in the metrics decorator when opts are given.
func (c *commandContext) newClient(metricsOpts ...ipcmetrics.Option) (*client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	provider, err := c.newProvider()
	if err != nil {
		return nil, err
	}
	target, _ := provider.Endpoint()

	out := &client{Requester: provider, endpoint: target, close: provider.Close}
	if cfg.Retry.Attempts > 1 {
		first := provider
		r := retry.Wrap(func() (retry.Provider, error) {
			if first != nil {
				p := first
				first = nil
				return p, nil
			}
			return c.newProvider()
		}, retry.Policy{
			Attempts: cfg.Retry.Attempts,
			Backoff:  cfg.Backoff(),
			Logger:   c.log(),
		})
		out.Requester = r
		out.close = r.Close
	}
	if len(metricsOpts) > 0 {
		out.Requester = ipcmetrics.Instrument(out.Requester, metricsOpts...)
	}
	return out, nil
}

func (c *commandContext) journalStore() *journal.Store {
	c.journalOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil || !cfg.Journal.Enabled {
			return
		}
		store, err := journal.Open(cfg)
		if err != nil {
			logging.WarnWithContext(c.log(), "call journal unavailable", "journal_open_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check journal.path or set journal.enabled = false"),
				logging.String(logging.FieldImpact, "this call is not recorded"))
			return
		}
		c.journal = store
	})
	return c.journal
}

// record stores one journal entry. Failures are logged and otherwise ignored.
func (c *commandContext) record(ctx context.Context, entry journal.Entry, err error) {
	store := c.journalStore()
	if store == nil {
		return
	}
	if err != nil {
		entry.Outcome = journal.OutcomeFailed
		entry.ErrorKind = ipcmetrics.ErrorKind(err)
		entry.Detail = err.Error()
		var rpcErr *ipc.RPCError
		if errors.As(err, &rpcErr) {
			entry.Outcome = journal.OutcomeRPCError
		}
	}
	if recErr := store.Record(context.WithoutCancel(ctx), &entry); recErr != nil {
		c.log().Debug("journal record failed", logging.Error(recErr))
	}
}

func (c *commandContext) close() {
	if c.journal != nil {
		if err := c.journal.Close(); err != nil {
			c.log().Debug("close journal", logging.Error(err))
		}
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func commandName(cmd *cobra.Command) string {
	return strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), cmd.Root().Name()))
}
