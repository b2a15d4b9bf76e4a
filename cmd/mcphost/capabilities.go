package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jakewatkins/mcphost"
)

var capsServerFilter string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List tools across every configured server",
	RunE:  runTools,
}

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List prompts across every configured server",
	RunE:  runPrompts,
}

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List resources across every configured server",
	RunE:  runResources,
}

func init() {
	for _, c := range []*cobra.Command{toolsCmd, promptsCmd, resourcesCmd} {
		c.Flags().StringVarP(&capsServerFilter, "server", "s", "", "Restrict the listing to one server")
		rootCmd.AddCommand(c)
	}
}

func withInitializedHost(fn func(*mcphost.Host) error) error {
	host := mcphost.New(configPath)
	ctx := context.Background()

	if err := host.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer host.Shutdown(ctx)

	return fn(host)
}

func runTools(cmd *cobra.Command, args []string) error {
	return withInitializedHost(func(host *mcphost.Host) error {
		tools, err := host.GetTools(capsServerFilter)
		if err != nil {
			return err
		}
		sort.Slice(tools, func(i, j int) bool {
			if tools[i].Server != tools[j].Server {
				return tools[i].Server < tools[j].Server
			}
			return tools[i].Tool.Name < tools[j].Tool.Name
		})

		if len(tools) == 0 {
			fmt.Println("No tools registered")
			return nil
		}
		fmt.Printf("%-20s  %-30s  %s\n", "SERVER", "TOOL", "DESCRIPTION")
		for _, t := range tools {
			fmt.Printf("%-20s  %-30s  %s\n", t.Server, t.Tool.Name, t.Tool.Description)
		}
		return nil
	})
}

func runPrompts(cmd *cobra.Command, args []string) error {
	return withInitializedHost(func(host *mcphost.Host) error {
		prompts, err := host.GetPrompts(capsServerFilter)
		if err != nil {
			return err
		}
		sort.Slice(prompts, func(i, j int) bool {
			if prompts[i].Server != prompts[j].Server {
				return prompts[i].Server < prompts[j].Server
			}
			return prompts[i].Prompt.Name < prompts[j].Prompt.Name
		})

		if len(prompts) == 0 {
			fmt.Println("No prompts registered")
			return nil
		}
		fmt.Printf("%-20s  %-30s  %s\n", "SERVER", "PROMPT", "DESCRIPTION")
		for _, p := range prompts {
			fmt.Printf("%-20s  %-30s  %s\n", p.Server, p.Prompt.Name, p.Prompt.Description)
		}
		return nil
	})
}

func runResources(cmd *cobra.Command, args []string) error {
	return withInitializedHost(func(host *mcphost.Host) error {
		resources, err := host.GetResources(capsServerFilter)
		if err != nil {
			return err
		}
		sort.Slice(resources, func(i, j int) bool {
			if resources[i].Server != resources[j].Server {
				return resources[i].Server < resources[j].Server
			}
			return resources[i].Resource.URI < resources[j].Resource.URI
		})

		if len(resources) == 0 {
			fmt.Println("No resources registered")
			return nil
		}
		fmt.Printf("%-20s  %-40s  %s\n", "SERVER", "URI", "NAME")
		for _, r := range resources {
			fmt.Printf("%-20s  %-40s  %s\n", r.Server, r.Resource.URI, r.Resource.Name)
		}
		return nil
	})
}
