package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// printResult writes v as JSON with --json and text otherwise.
func printResult(cmd *cobra.Command, v interface{}, text string) error {
	if globals.jsonOutput {
		return printJSON(cmd, v)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

// printList writes one name per line, or a JSON array with --json.
func printList(cmd *cobra.Command, names []string) error {
	if names == nil {
		names = []string{}
	}
	if globals.jsonOutput {
		return printJSON(cmd, names)
	}
	out := cmd.OutOrStdout()
	for _, name := range names {
		if _, err := fmt.Fprintln(out, name); err != nil {
			return err
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	return printJSONTo(cmd.OutOrStdout(), v)
}

func printJSONTo(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
