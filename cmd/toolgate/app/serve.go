// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolgate/pkg/config"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/orchestrator/server"
)

const gracefulShutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the toolgate MCP server",
		Long: `Start the toolgate MCP server, exposing find and run over stdio (the default, for a
client that spawns toolgate as a subprocess) or over streamable HTTP (--transport http, for a
client that connects over the network).`,
		RunE: runServe,
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve over: stdio or http")
	cmd.Flags().String("host", "", "Host to bind to when --transport=http (overrides config)")
	cmd.Flags().Int("port", 0, "Port to bind to when --transport=http (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	orch, err := buildOrchestrator(cfg)
	if err != nil {
		return fmt.Errorf("wiring orchestrator: %w", err)
	}
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("starting orchestrator: %w", err)
	}
	defer orch.Shutdown()

	mcpServer := server.New(orch, "toolgate", getVersion())

	transport, _ := cmd.Flags().GetString("transport")
	switch transport {
	case "stdio":
		logger.Info("serving toolgate over stdio")
		return mcpServer.ServeStdio()
	case "http":
		return serveHTTP(ctx, cmd, cfg, mcpServer)
	default:
		return fmt.Errorf("unknown transport %q, want stdio or http", transport)
	}
}

func serveHTTP(ctx context.Context, cmd *cobra.Command, cfg config.Config, mcpServer *server.Server) error {
	host, _ := cmd.Flags().GetString("host")
	if host == "" {
		host = cfg.Host
	}
	port, _ := cmd.Flags().GetInt("port")
	if port == 0 {
		port = cfg.Port
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	httpServer := server.NewHTTPServer(ctx, mcpServer, addr)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("serving toolgate over http://%s/mcp", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down toolgate http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
