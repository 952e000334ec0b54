// Package retry reissues IPC requests that failed in transit on a fresh
// provider.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nodeipc/internal/ipc"
	"nodeipc/internal/logging"
)

// Provider is what a Factory hands out: a requester that owns a connection.
type Provider interface {
	ipc.Requester
	Close() error
}

// Factory builds a new provider. It is called once up front and again after
// every retriable failure.
type Factory func() (Provider, error)

// Policy bounds how hard the decorator tries.
type Policy struct {
	// Attempts is the total number of tries; values below 2 disable retries.
	Attempts int
	// Backoff is the pause before each retry.
	Backoff time.Duration
	Logger  *slog.Logger
}

// Requester retries connection and timeout failures. Node error objects,
// protocol errors and configuration errors are returned on the first try.
type Requester struct {
	mu      sync.Mutex
	factory Factory
	policy  Policy
	logger  *slog.Logger
	current Provider
}

var _ ipc.Requester = (*Requester)(nil)

// Wrap returns a retrying requester over providers built by factory.
func Wrap(factory Factory, policy Policy) *Requester {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	if policy.Backoff < 0 {
		policy.Backoff = 0
	}
	return &Requester{
		factory: factory,
		policy:  policy,
		logger:  logging.NewComponentLogger(policy.Logger, "retry"),
	}
}

// MakeRequest issues one request, retrying on a new provider when allowed.
func (r *Requester) MakeRequest(ctx context.Context, method string, params []any) (*ipc.Response, error) {
	var resp *ipc.Response
	err := r.do(ctx, method, func(p Provider) error {
		var err error
		resp, err = p.MakeRequest(ctx, method, params)
		return err
	})
	return resp, err
}

// MakeBatchRequest issues a batch, retrying the whole batch when allowed.
func (r *Requester) MakeBatchRequest(ctx context.Context, calls []ipc.Call) ([]*ipc.Response, error) {
	var resps []*ipc.Response
	err := r.do(ctx, "batch", func(p Provider) error {
		var err error
		resps, err = p.MakeBatchRequest(ctx, calls)
		return err
	})
	return resps, err
}

// IsConnected reports whether the current provider can reach its endpoint.
func (r *Requester) IsConnected(ctx context.Context) bool {
	p, err := r.provider()
	if err != nil {
		r.logger.Debug("provider unavailable", logging.Error(err))
		return false
	}
	return p.IsConnected(ctx)
}

// Close releases the current provider.
func (r *Requester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

func (r *Requester) do(ctx context.Context, label string, call func(Provider) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		p, err := r.provider()
		if err != nil {
			return err
		}
		lastErr = call(p)
		if lastErr == nil || !Retriable(lastErr) {
			return lastErr
		}
		r.discard(p)
		if attempt == r.policy.Attempts {
			break
		}

		logging.WarnWithContext(r.logger, "ipc request failed; retrying on a new connection", "ipc_retry",
			logging.String(logging.FieldMethod, label),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", r.policy.Attempts),
			logging.Duration("backoff", r.policy.Backoff),
			logging.Error(lastErr),
			logging.String(logging.FieldImpact, "request will be reissued"),
		)
		if !sleep(ctx, r.policy.Backoff) {
			return lastErr
		}
	}
	return lastErr
}

func (r *Requester) provider() (Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return r.current, nil
	}
	p, err := r.factory()
	if err != nil {
		return nil, err
	}
	r.current = p
	return p, nil
}

// discard drops p if it is still current, so the next attempt builds a new
// one.
func (r *Requester) discard(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != p {
		return
	}
	if err := p.Close(); err != nil {
		r.logger.Debug("close failed provider", logging.Error(err))
	}
	r.current = nil
}

// Retriable reports whether err came from the transport rather than from the
// node or the caller's configuration.
func Retriable(err error) bool {
	if err == nil || errors.Is(err, ipc.ErrConfiguration) || errors.Is(err, ipc.ErrProtocol) {
		return false
	}
	var rpcErr *ipc.RPCError
	if errors.As(err, &rpcErr) {
		return false
	}
	return errors.Is(err, ipc.ErrConnection) || errors.Is(err, ipc.ErrTimeout)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
