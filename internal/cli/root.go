// Package cli implements the weft command-line tool, following a
// package-level rootCmd and per-command init() registration style for
// command/flag setup.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "A HyParView gossip membership node and signed-identity toolkit",
	Long: `weft runs a partial-view gossip membership node (HyParView) and
manages the signed, revision-chained identity documents peers use to
authenticate to each other.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "weft.toml", "path to the node's TOML config file")
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
