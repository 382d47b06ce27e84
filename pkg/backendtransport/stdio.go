// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"bufio"
	"context"
	"fmt"
	"io"

	mcpclient "github.com/mark3labs/mcp-go/client"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// stderrSource is satisfied by the stdio transport's concrete type;
// asserted against rather than imported directly since mcp-go exposes
// it off the transport, not the wrapping *client.Client.
type stderrSource interface {
	Stderr() io.Reader
}

// dialStdio spawns spec.Command as a subprocess and attaches its
// stdin/stdout as the framed message stream (spec §4.2 stdio variant).
// The child's stderr is captured line by line: written to a per-backend
// rotating log and scanned against stderrPatterns, with each recognized
// misconfiguration written to that log as a "classified" line. The
// classification is not returned to the caller; a failed handshake is
// still reported as a TransportError.
func (f *Factory) dialStdio(_ context.Context, spec domain.LaunchSpec) (Channel, error) {
	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	c, err := mcpclient.NewStdioMCPClient(spec.Command, env, spec.Args...)
	if err != nil {
		return nil, tgerrors.NewBackend(tgerrors.KindTransportError, spec.Name, "spawning stdio backend", err)
	}

	log, err := newBackendLog(f.logDir, spec.Name)
	if err != nil {
		log = nil // diagnostic capture only; don't fail the dial over it
	}

	if src, ok := c.GetTransport().(stderrSource); ok {
		if stderr := src.Stderr(); stderr != nil {
			go watchStderr(spec.Name, stderr, log)
		}
	}

	return &mcpChannel{backend: spec.Name, client: c, log: log}, nil
}

func watchStderr(backend string, r io.Reader, log *backendLog) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		log.writeLine(line)
		if cerr, ok := classifyStderrLine(line); ok {
			log.writeLine(fmt.Sprintf("[%s] classified: %s", backend, cerr.Error()))
		}
	}
}
