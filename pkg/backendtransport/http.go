// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"context"
	"net/http"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// dialHTTP opens a streamable-HTTP channel (spec §4.2 http_streaming
// variant): a long-lived chunked connection, requests and responses
// framed as JSON bodies.
func (f *Factory) dialHTTP(ctx context.Context, spec domain.LaunchSpec) (Channel, error) {
	httpClient, err := authenticatedHTTPClient(ctx, f, spec)
	if err != nil {
		return nil, err
	}

	c, err := mcpclient.NewStreamableHttpClient(spec.BaseURL, transport.WithHTTPBasicClient(httpClient))
	if err != nil {
		return nil, tgerrors.NewBackend(tgerrors.KindTransportError, spec.Name, "creating http_streaming client", err)
	}

	return &mcpChannel{backend: spec.Name, client: c}, nil
}

// authenticatedHTTPClient wraps the default transport with one that
// attaches the backend's cached credential as a bearer token, when one
// is configured (spec §4.2 "attaches what the provider returns").
func authenticatedHTTPClient(ctx context.Context, f *Factory, spec domain.LaunchSpec) (*http.Client, error) {
	if spec.Auth == nil {
		return http.DefaultClient, nil
	}
	cred, err := f.credentialFor(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	if cred.Material == "" {
		return http.DefaultClient, nil
	}
	return &http.Client{Transport: bearerRoundTripper{token: cred.Material, base: http.DefaultTransport}}, nil
}

type bearerRoundTripper struct {
	token string
	base  http.RoundTripper
}

func (b bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+b.token)
	return b.base.RoundTrip(clone)
}
