package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
)

const banner = `
                                       _
  _ __ ___   ___ _ __     __ _  __ _| |_ _____      ____ _ _   _
 | '_ ' _ \ / __| '_ \   / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
 | | | | | | (__| |_) | | (_| | (_| | ||  __/\ V  V / (_| | |_| |
 |_| |_| |_|\___| .__/   \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                |_|      |___/                             |___/
`

type serveOptions struct {
	configPath string
	debug      bool
	stdio      bool
}

func newServeCommand(version string) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway",
		Long: `Start the gateway HTTP server and gRPC health service.

With --stdio the gateway instead serves a single MCP client over
stdin/stdout; logs still go to stderr.

Example:
  mcp-gateway serve --config gateway.yaml
  mcp-gateway serve --stdio`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, opts, version, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfigPath),
		"Path to the YAML config file (env "+config.EnvConfigPath+")")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "Serve one MCP client over stdin/stdout")

	return cmd
}

func runServe(ctx context.Context, opts *serveOptions, version string, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger(cfg.Logging, opts.debug, stderr)
	slog.SetDefault(logger)

	gw, err := newApp(cfg, logger, version)
	if err != nil {
		return err
	}

	if opts.stdio {
		logger.Info("Starting MCP gateway", "version", version, "transport", "stdio", "tools", gw.registry.Len())
		return gw.serveStdio(ctx, os.Stdin, os.Stdout)
	}

	printBanner(stdout, cfg, opts.configPath, version, gw.registry.Len())
	logger.Info("Starting MCP gateway",
		"version", version,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"debug", opts.debug,
	)
	return gw.run(ctx)
}

func printBanner(w io.Writer, cfg *config.Config, configPath, version string, toolCount int) {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	cyan.Fprint(w, banner)
	gray.Fprintf(w, "    version: %s\n\n", version)

	if configPath == "" {
		configPath = "(defaults)"
	}
	rows := []struct{ label, value string }{
		{"Config:", configPath},
		{"HTTP:", cfg.Server.HTTPAddr},
		{"gRPC:", cfg.Server.GRPCAddr},
		{"Tools:", fmt.Sprintf("%d", toolCount)},
	}
	for _, row := range rows {
		green.Fprint(w, "    ▶ ")
		fmt.Fprintf(w, "%-10s %s\n", row.label, row.value)
	}
	fmt.Fprintln(w)
}
