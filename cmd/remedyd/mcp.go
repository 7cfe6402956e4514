package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/halcyonlabs/remedyd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the diagnosis pipeline over MCP on stdio",
	Long: `Run remedyd as an MCP server on the stdio transport.

An agent host spawns this process and calls the exposed tools:
  diagnose_and_repair  diagnose an error and rank solutions
  fix_preview          render the actions a fix would take
  fix_approve          approve a previewed fix
  fix_reject           reject a fix
  fix_execute          execute an approved fix
  fix_status           inspect a fix's lifecycle state
  patterns_info        report the loaded pattern corpus

Examples:
  remedyd mcp
  remedyd mcp --config /etc/remedyd/config.yaml`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	server, err := mcp.NewServer(&mcp.Config{
		Name:    "remedyd",
		Version: version,
		Logger:  a.logger.Underlying(),
	}, a.pipeline, a.fixer)
	if err != nil {
		return fmt.Errorf("creating mcp server: %w", err)
	}

	return server.Run(ctx)
}
