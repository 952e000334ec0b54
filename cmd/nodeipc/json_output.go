package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON encodes v to the command's stdout, indented when stdout is a
// terminal and one value per line otherwise.
func writeJSON(cmd *cobra.Command, v any) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if shouldColorize(out) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
