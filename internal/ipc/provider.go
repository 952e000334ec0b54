package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nodeipc/internal/endpoint"
	"nodeipc/internal/logging"
)

// Requester is the capability surface shared by the Provider and the
// decorators composed around it.
type Requester interface {
	MakeRequest(ctx context.Context, method string, params []any) (*Response, error)
	MakeBatchRequest(ctx context.Context, calls []Call) ([]*Response, error)
	IsConnected(ctx context.Context) bool
}

var _ Requester = (*Provider)(nil)

type dispatchFunc func(ctx context.Context, conn *connection, payload any) (json.RawMessage, error)

// Provider sends JSON-RPC requests to a node over its local IPC endpoint.
// One request/response round trip runs at a time; concurrent callers queue
// on the provider's mutex.
type Provider struct {
	mu sync.Mutex

	path      string
	env       endpoint.Environment
	timeout   time.Duration
	strictIDs bool
	dial      Dialer
	logger    *slog.Logger

	conn     *connection
	closed   bool
	dispatch dispatchFunc
}

// NewProvider builds a provider for path. An empty path defers to the
// platform default endpoint, resolved on first use. A leading "~" in path is
// expanded here, once.
func NewProvider(path string, opts ...Option) (*Provider, error) {
	p := &Provider{
		env:     endpoint.FromProcess(),
		timeout: DefaultTimeout,
		dial:    dialEndpoint,
		logger:  logging.NewComponentLogger(nil, "ipc"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dispatch = p.roundTrip

	path = strings.TrimSpace(path)
	if path != "" {
		expanded, err := endpoint.ExpandHome(path, p.env.HomeDir)
		if err != nil {
			return nil, newError(KindConfiguration, "resolve", path, err)
		}
		p.path = expanded
	}
	return p, nil
}

// Endpoint returns the address the provider targets, resolving the platform
// default when none was supplied.
func (p *Provider) Endpoint() (string, error) {
	if p.path != "" {
		return p.path, nil
	}
	resolved, err := endpoint.Default(p.env)
	if err != nil {
		return "", newError(KindConfiguration, "resolve", "", err)
	}
	return resolved, nil
}

// Timeout reports the per-request deadline.
func (p *Provider) Timeout() time.Duration {
	return p.timeout
}

// MakeRequest sends one request and returns the decoded reply envelope.
func (p *Provider) MakeRequest(ctx context.Context, method string, params []any) (*Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connectionLocked()
	if err != nil {
		return nil, err
	}
	req := conn.ids.newRequest(method, params)
	started := time.Now()
	raw, err := p.dispatch(ctx, conn, req)
	if err != nil {
		p.logger.Debug("ipc request failed",
			logging.String("method", method),
			logging.Uint64("request_id", req.ID),
			logging.Error(err))
		return nil, err
	}

	resp, err := decodeSingle(raw)
	if err != nil {
		return nil, newError(KindProtocol, "decode", conn.endpoint, err)
	}
	if id, ok := resp.IDValue(); !ok || id != req.ID {
		if p.strictIDs {
			return nil, newError(KindProtocol, "correlate", conn.endpoint,
				fmt.Errorf("response id %s does not match request id %d", preview(resp.ID), req.ID))
		}
		logging.WarnWithContext(p.logger, "response id does not match request id", "ipc_id_mismatch",
			logging.String("method", method),
			logging.Uint64("request_id", req.ID),
			logging.String("response_id", preview(resp.ID)),
			logging.String(logging.FieldErrorHint, "enable strict_ids to reject mismatched replies"),
			logging.String(logging.FieldImpact, "reply accepted without id correlation"))
	}
	p.logger.Debug("ipc request completed",
		logging.String("method", method),
		logging.Uint64("request_id", req.ID),
		logging.Int("bytes", len(raw)),
		logging.Duration("duration", time.Since(started)))
	return resp, nil
}

// MakeBatchRequest sends calls as one array payload and returns the replies
// in the order of calls, matched by id.
func (p *Provider) MakeBatchRequest(ctx context.Context, calls []Call) ([]*Response, error) {
	if len(calls) == 0 {
		return []*Response{}, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.connectionLocked()
	if err != nil {
		return nil, err
	}
	reqs := conn.ids.newBatch(calls)
	started := time.Now()
	raw, err := p.dispatch(withBatching(ctx), conn, reqs)
	if err != nil {
		p.logger.Debug("ipc batch failed",
			logging.Int("batch_size", len(reqs)),
			logging.Error(err))
		return nil, err
	}

	resps, err := correlateBatch(raw, reqs)
	if err != nil {
		return nil, newError(KindProtocol, "correlate", conn.endpoint, err)
	}
	p.logger.Debug("ipc batch completed",
		logging.Int("batch_size", len(reqs)),
		logging.Uint64("first_request_id", reqs[0].ID),
		logging.Int("bytes", len(raw)),
		logging.Duration("duration", time.Since(started)))
	return resps, nil
}

// Call issues method and decodes its result into result. A node error object
// is returned as *RPCError. result may be nil to discard the payload.
func (p *Provider) Call(ctx context.Context, result any, method string, params ...any) error {
	resp, err := p.MakeRequest(ctx, method, params)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if err := resp.Decode(result); err != nil {
		target, _ := p.Endpoint()
		return newError(KindProtocol, "decode", target, err)
	}
	return nil
}

// Ping checks that the endpoint accepts a connection and answers a
// web3_clientVersion request. Every failure is reported as a connection
// error carrying the original cause.
func (p *Provider) Ping(ctx context.Context) error {
	resp, err := p.MakeRequest(ctx, "web3_clientVersion", nil)
	if err == nil && resp.Error != nil {
		err = resp.Error
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnection) {
		return err
	}
	target, _ := p.Endpoint()
	return newError(KindConnection, "ping", target, err)
}

// IsConnected reports whether Ping succeeds. Failures are logged, not
// returned; use Ping for the cause.
func (p *Provider) IsConnected(ctx context.Context) bool {
	if err := p.Ping(ctx); err != nil {
		logging.WarnWithContext(p.logger, "ipc endpoint not reachable", "ipc_unreachable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the node is running and the socket path is correct"),
			logging.String(logging.FieldImpact, "node reported as disconnected"),
		)
		return false
	}
	return true
}

// Close releases the socket. The provider cannot be used afterwards.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.conn == nil {
		return nil
	}
	err := p.conn.close()
	p.conn = nil
	return err
}

// connectionLocked returns the provider's connection, creating it (closed)
// on first use. Caller holds p.mu.
func (p *Provider) connectionLocked() (*connection, error) {
	if p.closed {
		target, _ := p.Endpoint()
		return nil, newError(KindConnection, "connect", target, errors.New("provider is closed"))
	}
	if p.conn != nil {
		return p.conn, nil
	}
	target, err := p.Endpoint()
	if err != nil {
		return nil, err
	}
	p.conn = newConnection(target, p.dial)
	return p.conn, nil
}

func (p *Provider) roundTrip(ctx context.Context, conn *connection, payload any) (json.RawMessage, error) {
	return conn.roundTrip(ctx, payload, p.deadline(ctx))
}

func (p *Provider) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(p.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

type batchingKey struct{}

func withBatching(ctx context.Context) context.Context {
	return context.WithValue(ctx, batchingKey{}, true)
}

// IsBatching reports whether ctx belongs to a batch dispatch. The flag lives
// only in the context handed to the dispatch step of MakeBatchRequest.
func IsBatching(ctx context.Context) bool {
	batching, _ := ctx.Value(batchingKey{}).(bool)
	return batching
}
