// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"context"

	"github.com/stacklok/toolgate/pkg/domain"
)

// Credential is the opaque material a CredentialProvider hands back for
// one backend (spec §4.2, §9). The core never inspects Material beyond
// attaching it to outgoing requests.
type Credential struct {
	Kind     domain.AuthKind
	Material string
}

// CredentialProvider is the pluggable collaborator the Transport Factory
// consumes for attaching auth material to HTTP-variant backends (spec
// §1 "OAuth 2.1 ... treated as a pluggable credential provider", §4.2,
// §9). toolgate neither persists nor renews credentials; it only
// attaches what the provider returns.
type CredentialProvider interface {
	GetForBackend(ctx context.Context, backend string) (Credential, error)
	Invalidate(backend string)
}

// NoCredentials is a CredentialProvider for backends that need none,
// used as the default when a deployment has no credential collaborator
// wired in.
type NoCredentials struct{}

// GetForBackend always returns a zero-value Credential and no error.
func (NoCredentials) GetForBackend(context.Context, string) (Credential, error) {
	return Credential{}, nil
}

// Invalidate is a no-op.
func (NoCredentials) Invalidate(string) {}
