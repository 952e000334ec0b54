package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"nodeipc/internal/ipcmetrics"
	"nodeipc/internal/journal"
	"nodeipc/internal/logging"
)

type watchSample struct {
	Time   time.Time       `json:"time"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration
	var count int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch METHOD [PARAM...]",
		Short: "Call METHOD repeatedly and print one line per result",
		Example: "  nodeipc watch eth_blockNumber --interval 2s\n" +
			"  nodeipc watch eth_syncing --metrics-addr 127.0.0.1:9101",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			if interval <= 0 {
				return errors.New("--interval must be positive")
			}
			if count < 0 {
				return errors.New("--count must not be negative")
			}
			method := args[0]
			params := parseParams(args[1:])

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registry := prometheus.NewRegistry()
			cl, err := ctx.newClient(ipcmetrics.WithRegistry(registry))
			if err != nil {
				return err
			}
			defer cl.close()

			if metricsAddr != "" {
				shutdown, err := serveMetrics(runCtx, metricsAddr, registry, ctx.log())
				if err != nil {
					return err
				}
				defer shutdown()
				cl.IsConnected(runCtx)
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for n := 0; count == 0 || n < count; n++ {
				if n > 0 {
					select {
					case <-runCtx.Done():
						return nil
					case <-ticker.C:
					}
				}
				if err := watchOnce(runCtx, cmd, ctx, cl, method, params, metricsAddr != ""); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Delay between calls")
	cmd.Flags().IntVar(&count, "count", 0, "Stop after this many calls (0 runs until interrupted)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (for example 127.0.0.1:9101)")
	return cmd
}

// watchOnce performs one poll. Transport failures are printed and the watch
// continues; a cancelled context ends it quietly. With probe set, a transport
// failure refreshes the up gauge.
func watchOnce(runCtx context.Context, cmd *cobra.Command, ctx *commandContext, cl *client, method string, params []any, probe bool) error {
	started := time.Now()
	resp, err := cl.MakeRequest(runCtx, method, params)
	entry := journal.Entry{
		StartedAt: started,
		Command:   commandName(cmd),
		Method:    method,
		Endpoint:  cl.endpoint,
		Duration:  time.Since(started),
	}
	sample := watchSample{Time: started.UTC()}
	switch {
	case err != nil:
		if runCtx.Err() != nil {
			return nil
		}
		ctx.record(runCtx, entry, err)
		sample.Error = err.Error()
		if probe {
			cl.IsConnected(runCtx)
		}
	case resp.Error != nil:
		ctx.record(runCtx, entry, resp.Error)
		sample.Error = resp.Error.Error()
	default:
		ctx.record(runCtx, entry, nil)
		sample.Result = resp.Result
	}

	if ctx.flags.json {
		return writeJSON(cmd, sample)
	}
	out := cmd.OutOrStdout()
	stamp := sample.Time.Format(time.RFC3339)
	if sample.Error != "" {
		fmt.Fprintln(out, renderStatusLine(stamp, statusWarn, sample.Error, shouldColorize(out)))
		return nil
	}
	fmt.Fprintf(out, "%s  %s\n", stamp, sample.Result)
	return nil
}

// serveMetrics exposes registry on addr until the returned function runs.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on metrics address: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", logging.Error(err))
		}
	}()
	logger.Info("serving metrics", logging.String("address", listener.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
