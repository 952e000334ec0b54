package main

import (
	"time"

	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	endpoint string
	dev      bool
	timeout  time.Duration
	logLevel string
	json     bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "nodeipc",
		Short:         "JSON-RPC client for a node's local IPC endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	pf.StringVar(&flags.endpoint, "endpoint", "", "IPC endpoint (socket path or named pipe); overrides the config file")
	pf.BoolVar(&flags.dev, "dev", false, "Target a development node ($NODEIPC_ENDPOINT or $TMPDIR/geth.ipc)")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Per-request timeout (default from config, 10s)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flags.json, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(newCallCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newPingCommand(ctx))
	rootCmd.AddCommand(newEndpointCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
