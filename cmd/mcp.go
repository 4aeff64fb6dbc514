package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	mcpSDK "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/stachelabs/stache-go/internal/config"
	"github.com/stachelabs/stache-go/internal/mcpserver"
	"github.com/stachelabs/stache-go/internal/stache"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server over stdio",
	Long: `Expose the knowledge base as Model Context Protocol tools over
stdio, for use by MCP-compatible hosts. Logs go to stderr; stdout carries
the protocol stream.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(cfg)
	logger.Info("starting MCP server", "version", AppVersion, "transport", cfg.ResolvedTransport())

	client, err := stache.NewClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server, err := mcpserver.NewServer(mcpserver.Config{
		Name:    "stache",
		Version: AppVersion,
		Client:  client,
		Logger:  logger,
	})
	if err != nil {
		client.Close()
		return fmt.Errorf("creating MCP server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	logger.Info("MCP server ready", "name", "stache", "version", AppVersion)

	if err := server.Run(ctx, &mcpSDK.StdioTransport{}); err != nil && !errors.Is(err, ctx.Err()) {
		return fmt.Errorf("MCP server error: %w", err)
	}

	logger.Info("MCP server shut down")
	return nil
}
