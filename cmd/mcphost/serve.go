package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jakewatkins/mcphost"
	"github.com/jakewatkins/mcphost/internal/logging"
)

var serveLogLevel string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Initialize every configured server and block until signaled",
	Long: `serve loads the config file, starts every server in dependency
order, and blocks until SIGINT or SIGTERM, at which point it shuts every
server down gracefully.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.Level = serveLogLevel

	host := mcphost.New(configPath, mcphost.WithLogConfig(logCfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := host.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer host.Shutdown(context.Background())

	servers, _ := host.GetServers()
	fmt.Fprintf(os.Stderr, "mcphost: %d server(s) ready\n", len(servers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	fmt.Fprintf(os.Stderr, "mcphost: received %v, shutting down\n", sig)

	return nil
}
