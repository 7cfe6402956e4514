package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/halcyonlabs/remedyd/internal/autofix"
	"github.com/halcyonlabs/remedyd/internal/pipeline"
)

// Server exposes the diagnosis pipeline over MCP.
type Server struct {
	mcp      *mcp.Server
	pipeline pipeline.Service
	fixer    *autofix.Engine
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "remedyd")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "remedyd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server with the given services.
func NewServer(cfg *Config, svc pipeline.Service, fixer *autofix.Engine) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if svc == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	if fixer == nil {
		return nil, fmt.Errorf("fix engine is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:      mcpServer,
		pipeline: svc,
		fixer:    fixer,
		metrics:  NewMetrics(cfg.Logger),
		logger:   cfg.Logger,
	}

	s.registerTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close closes the server and the pipeline behind it.
func (s *Server) Close() error {
	s.logger.Info("closing MCP server and services")

	if err := s.pipeline.Close(); err != nil {
		return fmt.Errorf("pipeline close: %w", err)
	}
	return nil
}
