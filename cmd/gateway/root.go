package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the gateway CLI
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcp-gateway",
		Short: "MCP gateway - session and tool execution server",
		Long: `mcp-gateway fronts a set of tools over the Model Context Protocol.

It manages client sessions, negotiates protocol versions, rate limits each
session and runs tool calls in bounded worker pools. Clients connect over
JSON-RPC (POST /mcp), the REST session and tool endpoints, or stdio.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(newServeCommand(version))
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newToolsCommand())

	return rootCmd
}
