package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakewatkins/mcphost"
)

var (
	callArgsJSON string
	callTimeout  time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Invoke a single tool against a freshly initialized host",
	Args:  cobra.ExactArgs(1),
	RunE:  runCall,
}

func init() {
	callCmd.Flags().StringVar(&callArgsJSON, "args", "{}", "Tool arguments as a JSON object")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 0, "Per-call timeout, e.g. 10s (0 uses the host's default)")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	toolName := args[0]

	var arguments map[string]interface{}
	if err := json.Unmarshal([]byte(callArgsJSON), &arguments); err != nil {
		return fmt.Errorf("--args must be a JSON object: %w", err)
	}

	host := mcphost.New(configPath)
	ctx := context.Background()

	if err := host.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer host.Shutdown(ctx)

	result, err := host.CallTool(ctx, toolName, arguments, callTimeout)
	if err != nil {
		return fmt.Errorf("call %s: %w", toolName, err)
	}

	fmt.Println(string(result))
	return nil
}
