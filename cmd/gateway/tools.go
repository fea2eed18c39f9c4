package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
	"github.com/AltairaLabs/mcp-gateway/internal/protocol"
	"github.com/AltairaLabs/mcp-gateway/internal/registry"
	"github.com/AltairaLabs/mcp-gateway/internal/tools/handlers/builtin"
)

type toolsOptions struct {
	configPath string
	json       bool
}

func newToolsCommand() *cobra.Command {
	opts := &toolsOptions{}

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the built-in tools and their input schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTools(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfigPath),
		"Path to the YAML config file")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the tool descriptors as JSON")

	return cmd
}

func runTools(opts *toolsOptions, out io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	reg := registry.New(protocol.ServerInfo{Name: config.ServerName})
	if err := builtin.Register(reg, cfg.Tools); err != nil {
		return err
	}
	descriptors := reg.List()

	if opts.json {
		infos := make([]protocol.ToolInfo, 0, len(descriptors))
		for _, d := range descriptors {
			infos = append(infos, d.Info())
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOOL\tDESCRIPTION")
	for _, d := range descriptors {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Pool, d.Description)
	}
	return tw.Flush()
}
