// Package commands implements the jkblectl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// outputFormat controls the output format for all commands (table or json).
var outputFormat string

// rootCmd is the top-level cobra command for jkblectl.
var rootCmd = &cobra.Command{
	Use:   "jkblectl",
	Short: "Offline tool for JK BMS protocol definitions",
	Long:  "jkblectl decodes captured JK BMS frames against a protocol definition without needing a running jkbled daemon or a connected device.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
