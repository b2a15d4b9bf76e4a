package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jakewatkins/mcphost"
)

var metricsServerFilter string

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Initialize every server and dump its request metrics",
	Long: `metrics starts every configured server, reports the per-server
request counters of that freshly started host, and shuts down. Metrics
are kept in memory only, so counters from another process (such as a
'serve' run) are not visible; it is mainly a sanity check of a config
against a live set of servers.`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().StringVarP(&metricsServerFilter, "server", "s", "", "Restrict the report to one server")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	host := mcphost.New(configPath)
	ctx := context.Background()

	if err := host.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer host.Shutdown(ctx)

	data, err := host.GetMetrics(metricsServerFilter)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("No metrics recorded")
		return nil
	}

	fmt.Printf("%-20s  %8s  %8s  %8s  %10s  %10s\n", "SERVER", "REQUESTS", "SUCCESS", "ERRORS", "AVG(ms)", "P95(ms)")
	for _, name := range names {
		m := data[name]
		fmt.Printf("%-20s  %8d  %8d  %8d  %10.1f  %10.1f\n",
			name, m.RequestCount, m.SuccessCount, m.ErrorCount,
			float64(m.AvgLatency.Microseconds())/1000.0,
			float64(m.P95Latency.Microseconds())/1000.0)
	}
	return nil
}
