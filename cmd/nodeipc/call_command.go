package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nodeipc/internal/journal"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "call METHOD [PARAM...]",
		Short: "Send one JSON-RPC request and print the response envelope",
		Long: "Send one JSON-RPC request. Each PARAM is parsed as JSON when possible " +
			"and sent as a string otherwise.",
		Example: "  nodeipc call eth_blockNumber\n" +
			"  nodeipc call eth_getBalance 0x407d73d8a49eeb85d32cf465507dd71d507100c1 latest",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			method := args[0]
			params := parseParams(args[1:])

			cl, err := ctx.newClient()
			if err != nil {
				return err
			}
			defer cl.close()

			started := time.Now()
			resp, err := cl.MakeRequest(cmd.Context(), method, params)
			entry := journal.Entry{
				StartedAt: started,
				Command:   commandName(cmd),
				Method:    method,
				Endpoint:  cl.endpoint,
				Duration:  time.Since(started),
			}
			if err != nil {
				ctx.record(cmd.Context(), entry, err)
				return err
			}
			ctx.record(cmd.Context(), entry, resp.Err())

			if err := writeJSON(cmd, resp); err != nil {
				return err
			}
			if resp.Error != nil {
				return fmt.Errorf("%s: %w", method, resp.Error)
			}
			return nil
		},
	}
}
