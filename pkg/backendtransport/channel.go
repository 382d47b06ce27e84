// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package backendtransport implements the Transport Factory (spec §4.2,
// component C2): turning a backend's LaunchSpec into a live, full-duplex
// JSON-RPC Channel, in one of three variants (stdio, http_streaming,
// sse), all speaking MCP over github.com/mark3labs/mcp-go.
package backendtransport

import (
	"context"

	"github.com/stacklok/toolgate/pkg/domain"
)

// ContentKind distinguishes the payload shape of one content item in a
// tool result.
type ContentKind string

// Content kinds a backend's CallTool response may contain.
const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentAudio ContentKind = "audio"
)

// ContentItem is one piece of a tool call result.
type ContentItem struct {
	Kind     ContentKind `json:"kind"`
	Text     string      `json:"text,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Data     string      `json:"data,omitempty"`
}

// ToolResult is the verbatim result of a downstream tool call (spec
// §4.10 step 7: "return the result payload").
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// NotificationHandler receives a raw JSON-RPC notification method name
// and parameters from a backend (spec §4.2 "onNotification stream").
type NotificationHandler func(method string, params []byte)

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_channel.go -package=mocks github.com/stacklok/toolgate/pkg/backendtransport Channel

// Channel is a live bidirectional JSON-RPC connection to one backend
// (spec §3 "Channel", §4.2).
type Channel interface {
	// Initialize performs the MCP handshake and returns the backend's
	// reported ServerInfo.
	Initialize(ctx context.Context) (domain.ServerInfo, error)
	// ListTools enumerates the backend's tools.
	ListTools(ctx context.Context) ([]domain.ToolDescriptor, error)
	// CallTool invokes a tool by its unqualified name.
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	// Close releases the underlying transport. Safe to call more than
	// once.
	Close() error
	// OnNotification registers a handler for backend-initiated
	// notifications. Passing nil clears any previously registered
	// handler.
	OnNotification(handler NotificationHandler)
}
