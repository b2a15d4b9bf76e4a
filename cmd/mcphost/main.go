// Command mcphost is a thin demonstration CLI over the mcphost library.
// It exists to exercise the public façade manually; it carries no
// business logic of its own.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "mcphost",
	Short: "Supervise and query MCP capability servers",
	Long: `mcphost starts the MCP servers described in a config file, routes
tool/prompt/resource requests to whichever server owns them, and reports
their status and metrics.

This is a demonstration CLI over the mcphost library, not a front-end
with its own business logic.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mcp.json", "Path to the server config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
