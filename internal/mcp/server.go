// Package mcp exposes the case pipeline as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/reperto-cdss-server/internal/cdss"
	"github.com/reperto-cdss-server/internal/dataset"
	"github.com/reperto-cdss-server/internal/domain"
)

// Dependencies are the collaborators behind the tools. Dataset may be nil,
// in which case the dataset tools are not registered.
type Dependencies struct {
	Analyzer  *cdss.Analyzer
	Rubrics   domain.RubricReader
	Dataset   dataset.Store
	ExportDir string
	Logger    *logrus.Logger
}

// Server wraps the SDK server and the tool handlers.
type Server struct {
	mcpServer *mcp.Server
	deps      Dependencies
	cfg       domain.MCPConfig
	logger    *logrus.Logger
	tools     []string
}

// NewServer creates the MCP server and registers every tool.
func NewServer(cfg domain.MCPConfig, deps Dependencies) (*Server, error) {
	if deps.Analyzer == nil || deps.Rubrics == nil {
		return nil, fmt.Errorf("analyzer and rubric reader are required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = "reperto-cdss"
	}
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "1.0.0"
	}
	if cfg.TransportType == "" {
		cfg.TransportType = "stdio"
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: cfg.ServerName, Version: cfg.ServerVersion}, nil),
		deps:      deps,
		cfg:       cfg,
		logger:    deps.Logger,
	}
	s.registerTools()

	s.logger.WithFields(logrus.Fields{
		"server":     cfg.ServerName,
		"version":    cfg.ServerVersion,
		"tool_count": len(s.tools),
	}).Info("MCP server initialized")
	return s, nil
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

// Run serves on the configured transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	var transport mcp.Transport
	switch s.cfg.TransportType {
	case "stdio":
		transport = &mcp.StdioTransport{}
	default:
		return fmt.Errorf("unsupported MCP transport %q", s.cfg.TransportType)
	}

	s.logger.WithField("transport", s.cfg.TransportType).Info("Starting MCP server")
	if err := s.mcpServer.Run(ctx, transport); err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunWithTransport serves on an explicit transport.
func (s *Server) RunWithTransport(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}
