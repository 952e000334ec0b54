package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"nodeipc/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var method string
	var summary bool
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show calls recorded in the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Journal.Enabled {
				return errors.New("the call journal is disabled (journal.enabled = false)")
			}
			store, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case clearAll:
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d journal entries\n", removed)
				return nil
			case summary:
				summaries, err := store.Summarize(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.flags.json {
					return writeJSON(cmd, summaries)
				}
				if len(summaries) == 0 {
					fmt.Fprintln(out, "No calls recorded")
					return nil
				}
				fmt.Fprintln(out, renderSummaryTable(summaries))
				return nil
			}

			entries, err := store.List(cmd.Context(), journal.ListOptions{Limit: limit, Method: method})
			if err != nil {
				return err
			}
			if ctx.flags.json {
				if entries == nil {
					entries = []journal.Entry{}
				}
				return writeJSON(cmd, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No calls recorded")
				return nil
			}
			fmt.Fprintln(out, renderHistoryTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVar(&method, "method", "", "Only show calls to this method")
	cmd.Flags().BoolVar(&summary, "summary", false, "Aggregate calls per method")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Delete all recorded calls")
	return cmd
}

func renderHistoryTable(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		method := entry.Method
		if entry.BatchSize > 0 {
			method = fmt.Sprintf("%s (x%d)", method, entry.BatchSize)
		}
		outcome := string(entry.Outcome)
		if entry.ErrorKind != "" {
			outcome += " (" + entry.ErrorKind + ")"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.StartedAt.Local().Format("2006-01-02 15:04:05"),
			entry.Command,
			method,
			outcome,
			entry.Duration.Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]column{right("ID"), left("Started"), left("Command"), left("Method"), wrapped("Outcome", 32), right("Duration")},
		rows,
	)
}

func renderSummaryTable(summaries []journal.MethodSummary) string {
	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Method,
			strconv.Itoa(s.Calls),
			strconv.Itoa(s.Failures),
			s.AvgDuration.String(),
			s.LastCalled.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return renderTable(
		[]column{left("Method"), right("Calls"), right("Failures"), right("Avg"), left("Last")},
		rows,
	)
}
