// Package ipcmetrics records Prometheus metrics around an ipc.Requester.
package ipcmetrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nodeipc/internal/ipc"
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRPCError = "rpc_error"
	OutcomeError    = "error"
)

// batchMethod labels the duration of a whole batch.
const batchMethod = "batch"

// Config configures the metrics decorator.
type Config struct {
	// Namespace is the metrics namespace (default: "nodeipc").
	Namespace string

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the metrics decorator.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "nodeipc",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	requestsTotal   *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	up              prometheus.Gauge
}

func newMetrics(config Config) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "requests_total",
			Help:      "Total number of JSON-RPC calls sent over IPC",
		}, []string{"method", "outcome"}),

		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "errors_total",
			Help:      "Total number of failed IPC round trips by error kind",
		}, []string{"kind"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "request_duration_seconds",
			Help:      "IPC round trip duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"method"}),

		batchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "batch_size",
			Help:      "Number of calls per batch request",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "up",
			Help:      "Whether the last reachability check succeeded",
		}),
	}
}

// Requester decorates an ipc.Requester with metrics.
type Requester struct {
	next    ipc.Requester
	metrics *metrics
}

var _ ipc.Requester = (*Requester)(nil)

// Instrument wraps next. Metrics are registered once per call, so use a
// dedicated registry when instrumenting more than one requester.
func Instrument(next ipc.Requester, opts ...Option) *Requester {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Namespace == "" {
		config.Namespace = "nodeipc"
	}
	if len(config.Buckets) == 0 {
		config.Buckets = prometheus.DefBuckets
	}
	if config.Registry == nil {
		config.Registry = prometheus.DefaultRegisterer
	}
	return &Requester{next: next, metrics: newMetrics(config)}
}

// MakeRequest forwards to the wrapped requester and records the call.
func (r *Requester) MakeRequest(ctx context.Context, method string, params []any) (*ipc.Response, error) {
	started := time.Now()
	resp, err := r.next.MakeRequest(ctx, method, params)
	r.metrics.requestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	if err != nil {
		r.recordFailure(err, method)
		return nil, err
	}
	r.metrics.requestsTotal.WithLabelValues(method, outcome(resp)).Inc()
	return resp, nil
}

// MakeBatchRequest forwards to the wrapped requester and records one sample
// per call in the batch.
func (r *Requester) MakeBatchRequest(ctx context.Context, calls []ipc.Call) ([]*ipc.Response, error) {
	if len(calls) > 0 {
		r.metrics.batchSize.Observe(float64(len(calls)))
	}
	started := time.Now()
	resps, err := r.next.MakeBatchRequest(ctx, calls)
	if len(calls) > 0 {
		r.metrics.requestDuration.WithLabelValues(batchMethod).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		methods := make([]string, 0, len(calls))
		for _, call := range calls {
			methods = append(methods, call.Method)
		}
		r.recordFailure(err, methods...)
		return nil, err
	}
	for i, resp := range resps {
		if i >= len(calls) {
			break
		}
		r.metrics.requestsTotal.WithLabelValues(calls[i].Method, outcome(resp)).Inc()
	}
	return resps, nil
}

// IsConnected forwards the check and exports it as the up gauge.
func (r *Requester) IsConnected(ctx context.Context) bool {
	ok := r.next.IsConnected(ctx)
	if ok {
		r.metrics.up.Set(1)
	} else {
		r.metrics.up.Set(0)
	}
	return ok
}

func (r *Requester) recordFailure(err error, methods ...string) {
	r.metrics.errorsTotal.WithLabelValues(ErrorKind(err)).Inc()
	for _, method := range methods {
		r.metrics.requestsTotal.WithLabelValues(method, OutcomeError).Inc()
	}
}

func outcome(resp *ipc.Response) string {
	if resp != nil && resp.Error != nil {
		return OutcomeRPCError
	}
	return OutcomeOK
}

// ErrorKind returns the label used for err in errors_total.
func ErrorKind(err error) string {
	var rpcErr *ipc.RPCError
	if errors.As(err, &rpcErr) {
		return "rpc"
	}
	if kind := ipc.KindOf(err); kind != 0 {
		return kind.String()
	}
	return "other"
}
