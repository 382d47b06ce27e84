// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server is toolgate's MCP wire binding: it exposes the
// Orchestrator Facade's find and run operations (spec §4.12) as the
// only two tools an upstream AI client ever sees (spec §2: the client
// talks to exactly one server, which exposes exactly two tools), over
// either stdio or streamable HTTP, plus a chi-routed /healthz and a
// Prometheus /metrics endpoint for operators.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stacklok/toolgate/pkg/backendtransport"
	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
	"github.com/stacklok/toolgate/pkg/finder"
	"github.com/stacklok/toolgate/pkg/logger"
)

// Facade is the subset of *orchestrator.Orchestrator this binding
// calls, narrowed so tests can substitute a fake without constructing a
// real Orchestrator's dependency graph.
type Facade interface {
	Find(ctx context.Context, query string, opts finder.Options) ([]finder.Match, error)
	Run(ctx context.Context, qualifiedName string, args map[string]any) (*backendtransport.ToolResult, error)
	Health() map[string]domain.HealthState
}

// findArgs is the JSON shape of the find tool's single argument (spec
// §4.9's query/limit/depth options surfaced over MCP).
type findArgs struct {
	Query         string  `json:"query"`
	Limit         int     `json:"limit,omitempty"`
	MinConfidence float64 `json:"minConfidence,omitempty"`
	Depth         string  `json:"depth,omitempty"`
}

// runArgs is the JSON shape of the run tool's arguments (spec §4.10).
type runArgs struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Server binds a Facade to the MCP protocol.
type Server struct {
	facade Facade
	mcp    *mcpserver.MCPServer
}

// New builds the MCP tool surface (find, run) over facade. name and
// version identify toolgate in the MCP initialize handshake.
func New(facade Facade, name, version string) *Server {
	mcpSrv := mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithLogging(),
	)

	s := &Server{facade: facade, mcp: mcpSrv}

	mcpSrv.AddTool(mcp.Tool{
		Name:        "find",
		Description: "Search for tools across every configured backend by natural-language intent",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural-language description of the desired capability; empty lists every tool alphabetically",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches to return",
				},
				"minConfidence": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity score (0-1) a match must clear",
				},
				"depth": map[string]interface{}{
					"type":        "string",
					"description": "Projection depth: names_only, with_descriptions, or full",
				},
			},
		},
	}, s.find)

	mcpSrv.AddTool(mcp.Tool{
		Name:        "run",
		Description: "Invoke a tool by its qualified backend:tool id",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tool": map[string]interface{}{
					"type":        "string",
					"description": "Qualified tool id in backend:tool form, as returned by find",
				},
				"arguments": map[string]interface{}{
					"type":        "object",
					"description": "Arguments to pass to the tool, matching its input schema",
				},
			},
			Required: []string{"tool"},
		},
	}, s.run)

	return s
}

func (s *Server) find(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args findArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	opts := finder.DefaultOptions()
	if args.Limit > 0 {
		opts.Limit = args.Limit
	}
	if args.MinConfidence > 0 {
		opts.MinConfidence = args.MinConfidence
	}
	if depth, ok := parseDepth(args.Depth); ok {
		opts.Depth = depth
	}

	matches, err := s.facade.Find(ctx, args.Query, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultStructuredOnly(matches), nil
}

func parseDepth(s string) (finder.Depth, bool) {
	switch s {
	case "names_only":
		return finder.DepthNamesOnly, true
	case "with_descriptions":
		return finder.DepthWithDescriptions, true
	case "full":
		return finder.DepthFull, true
	default:
		return 0, false
	}
}

func (s *Server) run(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args runArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	// A correlation ID for this invocation, so a run logged here can be
	// matched against the backend-side log a Transport Factory captures
	// for the same call (spec §4.2's per-backend stderr capture).
	correlationID := uuid.NewString()
	logger.Debugf("run %s: invoking %s", correlationID, args.Tool)

	result, err := s.facade.Run(ctx, args.Tool, args.Arguments)
	if err != nil {
		logger.Debugf("run %s: %v", correlationID, err)
		return mcp.NewToolResultError(jsonRPCMessage(err)), nil
	}

	content := make([]mcp.Content, 0, len(result.Content))
	for _, item := range result.Content {
		switch item.Kind {
		case backendtransport.ContentImage:
			content = append(content, mcp.NewImageContent(item.Data, item.MimeType))
		case backendtransport.ContentAudio:
			content = append(content, mcp.NewAudioContent(item.Data, item.MimeType))
		default:
			content = append(content, mcp.NewTextContent(item.Text))
		}
	}
	return &mcp.CallToolResult{Content: content, IsError: result.IsError}, nil
}

// jsonRPCMessage renders a taxonomy error the way spec §7's
// supplemental JSON-RPC error-code mapping expects: the Kind prefixed
// onto the message so a client can pattern-match on it without parsing
// a structured code out of band.
func jsonRPCMessage(err error) string {
	if kind, ok := tgerrors.KindOf(err); ok {
		return fmt.Sprintf("[%s] %v", kind, err)
	}
	return err.Error()
}

// ServeStdio serves the MCP protocol over stdio, the transport a local
// AI client process talks to toolgate over. It blocks until stdin
// closes or the server errors.
func (s *Server) ServeStdio() error {
	return mcpserver.ServeStdio(s.mcp)
}

// HTTPHandler returns the chi-routed HTTP surface: the streamable MCP
// endpoint at /mcp, a liveness check at /healthz reporting backend
// health, and Prometheus metrics at /metrics.
func (s *Server) HTTPHandler(ctx context.Context) http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(
		s.mcp,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithHTTPContextFunc(func(_ context.Context, _ *http.Request) context.Context {
			return ctx
		}),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Mount("/mcp", streamable)
	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	states := s.facade.Health()
	for _, state := range states {
		if state.Status == domain.HealthQuarantined {
			http.Error(w, "one or more backends quarantined", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// NewHTTPServer wraps HTTPHandler in an *http.Server with the
// teacher's Slowloris-resistant header timeout (grounded on
// cmd/thv/app/mcp_serve.go's ReadHeaderTimeout).
func NewHTTPServer(ctx context.Context, s *Server, addr string) *http.Server {
	logger.Debugf("binding toolgate MCP server to %s", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
