package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/AltairaLabs/mcp-gateway/internal/api"
)

func startHealthServer(t *testing.T) (string, func(bool)) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := api.NewHealthServer()
	gs := grpc.NewServer()
	api.RegisterHealth(gs, hs)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	return lis.Addr().String(), func(serving bool) { api.SetServing(hs, serving) }
}

func TestRunHealthServing(t *testing.T) {
	addr, _ := startHealthServer(t)

	var out bytes.Buffer
	opts := &healthOptions{addr: addr, service: api.HealthService, timeout: 5 * time.Second}
	require.NoError(t, runHealth(context.Background(), opts, &out))
	assert.Contains(t, out.String(), addr)
	assert.Contains(t, out.String(), "SERVING")
}

func TestRunHealthJSON(t *testing.T) {
	addr, _ := startHealthServer(t)

	var out bytes.Buffer
	opts := &healthOptions{addr: addr, service: api.HealthService, timeout: 5 * time.Second, json: true}
	require.NoError(t, runHealth(context.Background(), opts, &out))
	assert.JSONEq(t, `{"status":"SERVING"}`, out.String())
}

func TestRunHealthNotServing(t *testing.T) {
	addr, setServing := startHealthServer(t)
	setServing(false)

	var out bytes.Buffer
	opts := &healthOptions{addr: addr, service: api.HealthService, timeout: 5 * time.Second}
	err := runHealth(context.Background(), opts, &out)
	assert.ErrorContains(t, err, "unhealthy")
	assert.Contains(t, out.String(), "NOT_SERVING")
}

func TestRunHealthUnknownService(t *testing.T) {
	addr, _ := startHealthServer(t)

	opts := &healthOptions{addr: addr, service: "nope", timeout: 5 * time.Second}
	err := runHealth(context.Background(), opts, &bytes.Buffer{})
	assert.ErrorContains(t, err, "health check failed")
}
