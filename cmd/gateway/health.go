package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/AltairaLabs/mcp-gateway/internal/api"
	"github.com/AltairaLabs/mcp-gateway/internal/coordinator/config"
)

type healthOptions struct {
	configPath string
	addr       string
	service    string
	timeout    time.Duration
	json       bool
}

func newHealthCommand() *cobra.Command {
	opts := &healthOptions{}

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a running gateway through the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHealth(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvConfigPath),
		"Path to the YAML config file used to find the gRPC address")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "gRPC address; overrides the config")
	cmd.Flags().StringVar(&opts.service, "service", api.HealthService, "Health service name to check")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "Deadline for the check")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the raw health response as JSON")

	return cmd
}

func runHealth(ctx context.Context, opts *healthOptions, out io.Writer) error {
	addr := opts.addr
	if addr == "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		addr = cfg.Server.GRPCAddr
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: opts.service})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if opts.json {
		data, err := protojson.Marshal(resp)
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else {
		printHealth(out, addr, resp.GetStatus())
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", resp.GetStatus())
	}
	return nil
}

func printHealth(w io.Writer, addr string, status healthpb.HealthCheckResponse_ServingStatus) {
	c := color.New(color.FgRed, color.Bold)
	if status == healthpb.HealthCheckResponse_SERVING {
		c = color.New(color.FgGreen)
	}
	fmt.Fprintf(w, "%s ", addr)
	c.Fprintln(w, status.String())
}
