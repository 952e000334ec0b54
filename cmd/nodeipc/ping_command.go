package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nodeipc/internal/journal"
)

type pingResult struct {
	Endpoint  string `json:"endpoint"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func newPingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the node answers on its IPC endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			provider, err := ctx.newProvider()
			if err != nil {
				return err
			}
			defer provider.Close()
			target, _ := provider.Endpoint()

			started := time.Now()
			pingErr := provider.Ping(cmd.Context())
			elapsed := time.Since(started)
			ctx.record(cmd.Context(), journal.Entry{
				StartedAt: started,
				Command:   commandName(cmd),
				Method:    "web3_clientVersion",
				Endpoint:  target,
				Duration:  elapsed,
			}, pingErr)

			result := pingResult{Endpoint: target, Reachable: pingErr == nil, LatencyMS: elapsed.Milliseconds()}
			if pingErr != nil {
				result.Error = pingErr.Error()
			}
			if ctx.flags.json {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				return pingErr
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			label := target
			if label == "" {
				label = "unresolved"
			}
			if pingErr != nil {
				fmt.Fprintln(out, renderStatusLine("Node", statusError, label, colorize))
				return pingErr
			}
			fmt.Fprintln(out, renderStatusLine("Node", statusOK, fmt.Sprintf("%s (%s)", label, elapsed.Round(time.Millisecond)), colorize))
			return nil
		},
	}
}
