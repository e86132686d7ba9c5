// Package mcp provides an MCP (Model Context Protocol) server that lets an
// assistant inspect stored reaction networks.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/plexsim/internal/constants"
	"github.com/nvandessel/plexsim/internal/pathutil"
	"github.com/nvandessel/plexsim/internal/ratelimit"
	"github.com/nvandessel/plexsim/internal/store"
)

// Server wraps the MCP SDK server with the network inspection tools.
type Server struct {
	server      *sdk.Server
	store       store.Network
	closer      func() error
	auditLogger *AuditLogger
	limiters    ratelimit.Tools

	// checkpointDir is the only directory checkpoint tools may read.
	checkpointDir string
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "plexsim")
	Version string // Server version
	// OutDir holds the network database, the checkpoints and the audit log.
	OutDir string
	// Database overrides the database path; relative paths are under OutDir.
	Database string
}

// NewServer opens the network database and creates a server over it.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	db, err := store.Open(ctx, store.ResolvePath(cfg.OutDir, cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to open network database %s: %w", pathutil.Redact(store.ResolvePath(cfg.OutDir, cfg.Database)), err)
	}
	s := newServer(cfg, db, NewAuditLogger(filepath.Join(cfg.OutDir, constants.AuditFile)))
	s.closer = db.Close
	return s, nil
}

// newServer builds a server over an already open store.
func newServer(cfg *Config, st store.Network, audit *AuditLogger) *Server {
	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		server:        mcpServer,
		store:         st,
		closer:        func() error { return nil },
		auditLogger:   audit,
		limiters:      ratelimit.DefaultTools(),
		checkpointDir: filepath.Join(cfg.OutDir, constants.CheckpointDir),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close closes the database and the audit log.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.closer(); err != nil {
		return err
	}
	return auditErr
}
