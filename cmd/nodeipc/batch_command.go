package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nodeipc/internal/ipc"
	"nodeipc/internal/journal"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "batch [FILE]",
		Short: "Send a batch of calls read from FILE or stdin",
		Long: "Send several calls as one JSON-RPC batch. The input is a JSON array of " +
			"{\"method\": ..., \"params\": [...]} objects; replies print in input order.",
		Example: "  echo '[{\"method\":\"eth_chainId\"},{\"method\":\"net_version\"}]' | nodeipc batch",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()

			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open batch file: %w", err)
				}
				defer file.Close()
				input = file
			}
			calls, err := readCalls(input)
			if err != nil {
				return err
			}

			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			defer cl.close()

			started := time.Now()
			resps, err := cl.MakeBatchRequest(cmd.Context(), calls)
			ctx.record(cmd.Context(), journal.Entry{
				StartedAt: started,
				Command:   commandName(cmd),
				Method:    batchMethods(calls),
				Endpoint:  cl.endpoint,
				BatchSize: len(calls),
				Duration:  time.Since(started),
			}, err)
			if err != nil {
				return err
			}
			if resps == nil {
				resps = []*ipc.Response{}
			}
			return writeJSON(cmd, resps)
		},
	}
}

// batchMethods lists the distinct methods of a batch in first-seen order.
func batchMethods(calls []ipc.Call) string {
	seen := make(map[string]struct{}, len(calls))
	methods := make([]string, 0, len(calls))
	for _, call := range calls {
		if _, ok := seen[call.Method]; ok {
			continue
		}
		seen[call.Method] = struct{}{}
		methods = append(methods, call.Method)
	}
	return strings.Join(methods, ",")
}
