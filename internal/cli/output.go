package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func validateOutputFormat(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	}
	return fmt.Errorf("unsupported output format %q (use table, json or yaml)", format)
}

// printResult writes v in the selected output format. For the table format
// human is called instead; a nil human falls back to JSON.
func printResult(cmd *cobra.Command, v interface{}, human func(w io.Writer) error) error {
	w := cmd.OutOrStdout()
	switch outputFormat {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "table":
		if human != nil {
			return human(w)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
