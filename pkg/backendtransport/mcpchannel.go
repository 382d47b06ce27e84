// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"context"
	"encoding/json"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

const clientName = "toolgate"

// mcpChannel adapts a *mcpclient.Client (one transport variant or
// another) to the Channel interface (spec §4.2). All three dial*
// constructors in this package produce one of these; the variant-
// specific differences are confined to how the underlying
// *mcpclient.Client gets built.
type mcpChannel struct {
	backend string
	client  *mcpclient.Client
	log     *backendLog
}

func (c *mcpChannel) Initialize(ctx context.Context) (domain.ServerInfo, error) {
	if err := c.client.Start(ctx); err != nil {
		return domain.ServerInfo{}, tgerrors.NewBackend(tgerrors.KindTransportError, c.backend,
			"starting transport", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: clientName, Version: "1"}

	result, err := c.client.Initialize(ctx, req)
	if err != nil {
		return domain.ServerInfo{}, classifyInitError(c.backend, err)
	}

	return domain.ServerInfo{
		Name:    result.ServerInfo.Name,
		Version: result.ServerInfo.Version,
	}, nil
}

func (c *mcpChannel) ListTools(ctx context.Context) ([]domain.ToolDescriptor, error) {
	result, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, tgerrors.NewBackend(tgerrors.KindProtocolError, c.backend, "listing tools", err)
	}

	descs := make([]domain.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		descs = append(descs, domain.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaFromProperties(t.InputSchema.Properties, t.InputSchema.Required),
		})
	}
	return descs, nil
}

func (c *mcpChannel) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		// mcp-go only returns a Go error here for a transport/protocol
		// failure; a tool-level failure arrives as a normal result with
		// result.IsError set below, not as err, and must not affect
		// backend health (spec §7). A transport failure here does.
		return nil, tgerrors.NewBackend(tgerrors.KindTransportError, c.backend, fmt.Sprintf("calling tool %q", name), err)
	}

	out := &ToolResult{IsError: result.IsError}
	for _, item := range result.Content {
		out.Content = append(out.Content, contentFromMCP(item))
	}
	return out, nil
}

func (c *mcpChannel) Close() error {
	err := c.client.Close()
	_ = c.log.Close()
	if err != nil {
		return tgerrors.NewBackend(tgerrors.KindTransportError, c.backend, "closing transport", err)
	}
	return nil
}

func (c *mcpChannel) OnNotification(handler NotificationHandler) {
	if handler == nil {
		c.client.OnNotification(nil)
		return
	}
	c.client.OnNotification(func(n mcp.JSONRPCNotification) {
		params, _ := notificationParamsJSON(n)
		handler(n.Method, params)
	})
}

func contentFromMCP(item mcp.Content) ContentItem {
	switch v := item.(type) {
	case mcp.TextContent:
		return ContentItem{Kind: ContentText, Text: v.Text}
	case mcp.ImageContent:
		return ContentItem{Kind: ContentImage, MimeType: v.MIMEType, Data: v.Data}
	case mcp.AudioContent:
		return ContentItem{Kind: ContentAudio, MimeType: v.MIMEType, Data: v.Data}
	default:
		return ContentItem{Kind: ContentText, Text: fmt.Sprintf("%v", item)}
	}
}

func schemaFromProperties(props map[string]any, required []string) domain.InputSchema {
	if len(props) == 0 {
		return nil
	}
	requiredSet := make(map[string]bool, len(required))
	for _, r := range required {
		requiredSet[r] = true
	}

	schema := make(domain.InputSchema, len(props))
	for name, raw := range props {
		p := domain.ParamSchema{Required: requiredSet[name]}
		if m, ok := raw.(map[string]any); ok {
			if t, ok := m["type"].(string); ok {
				p.Type = t
			}
			if d, ok := m["description"].(string); ok {
				p.Description = d
			}
		}
		schema[name] = p
	}
	return schema
}

func notificationParamsJSON(n mcp.JSONRPCNotification) ([]byte, error) {
	return json.Marshal(n.Params)
}

// classifyInitError wraps a transport-level Initialize failure as a
// TransportError. It does not consult the stdio stderr classification:
// a misconfiguration recognized on stderr is only written to the
// backend log and does not turn this error into a ConfigError.
func classifyInitError(backend string, cause error) error {
	return tgerrors.NewBackend(tgerrors.KindTransportError, backend, "initializing backend", cause)
}
