package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nodeipc/internal/endpoint"
	"nodeipc/internal/ipc"
)

const (
	probeStateReachable   = "reachable"
	probeStateUnreachable = "unreachable"
	probeStateUnresolved  = "not resolvable"
	maxProbeTimeout       = 2 * time.Second
)

type endpointProbe struct {
	Source   string `json:"source"`
	Endpoint string `json:"endpoint,omitempty"`
	Selected bool   `json:"selected"`
	State    string `json:"state"`
	Detail   string `json:"detail,omitempty"`
}

func newEndpointCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "endpoint",
		Short: "Show candidate IPC endpoints and whether a node answers on each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			selected, _ := ctx.endpointPath()
			if selected == "" {
				selected, _ = endpoint.Default(ctx.env)
			}

			probes := candidateEndpoints(ctx.env, cfg.Endpoint.Path)
			for i := range probes {
				probes[i].Selected = probes[i].Endpoint != "" && probes[i].Endpoint == selected
			}
			timeout := ctx.timeout()
			if timeout > maxProbeTimeout {
				timeout = maxProbeTimeout
			}
			if err := probeEndpoints(cmd.Context(), ctx.env, probes, timeout); err != nil {
				return err
			}

			if ctx.flags.json {
				return writeJSON(cmd, probes)
			}
			rows := make([][]string, 0, len(probes))
			for _, probe := range probes {
				mark := ""
				if probe.Selected {
					mark = "*"
				}
				rows = append(rows, []string{mark, probe.Source, probe.Endpoint, titleLabel(probe.State), probe.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]column{left(""), left("Source"), left("Endpoint"), left("State"), wrapped("Detail", 48)},
				rows,
			))
			return nil
		},
	}
}

// candidateEndpoints lists the explicit endpoint (when configured), the
// platform default and the development endpoint.
func candidateEndpoints(env endpoint.Environment, configured string) []endpointProbe {
	var probes []endpointProbe
	if configured != "" {
		probes = append(probes, endpointProbe{Source: "configured", Endpoint: configured})
	}
	for _, candidate := range []struct {
		source  string
		resolve func(endpoint.Environment) (string, error)
	}{
		{"default", endpoint.Default},
		{"dev", endpoint.Dev},
	} {
		probe := endpointProbe{Source: candidate.source}
		resolved, err := candidate.resolve(env)
		if err != nil {
			probe.State = probeStateUnresolved
			probe.Detail = err.Error()
		} else {
			probe.Endpoint = resolved
		}
		probes = append(probes, probe)
	}
	return probes
}

// probeEndpoints pings every resolved candidate concurrently and fills in
// State and Detail.
func probeEndpoints(ctx context.Context, env endpoint.Environment, probes []endpointProbe, timeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range probes {
		if probes[i].State == probeStateUnresolved {
			continue
		}
		probe := &probes[i]
		g.Go(func() error {
			provider, err := ipc.NewProvider(probe.Endpoint, ipc.WithEnvironment(env), ipc.WithTimeout(timeout))
			if err != nil {
				probe.State = probeStateUnresolved
				probe.Detail = err.Error()
				return nil
			}
			defer provider.Close()
			if err := provider.Ping(gctx); err != nil {
				probe.State = probeStateUnreachable
				probe.Detail = err.Error()
				return nil
			}
			probe.State = probeStateReachable
			return nil
		})
	}
	return g.Wait()
}
