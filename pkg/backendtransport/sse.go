// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"context"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// dialSSE opens a server-sent-events channel (spec §4.2 sse variant):
// one-way server push for responses/notifications plus POST for
// requests.
func (f *Factory) dialSSE(ctx context.Context, spec domain.LaunchSpec) (Channel, error) {
	httpClient, err := authenticatedHTTPClient(ctx, f, spec)
	if err != nil {
		return nil, err
	}

	c, err := mcpclient.NewSSEMCPClient(spec.BaseURL, transport.WithHTTPBasicClient(httpClient))
	if err != nil {
		return nil, tgerrors.NewBackend(tgerrors.KindTransportError, spec.Name, "creating sse client", err)
	}

	return &mcpChannel{backend: spec.Name, client: c}, nil
}
