// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"context"
	"fmt"
	"sync"

	"github.com/stacklok/toolgate/pkg/domain"
	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// Factory is a pure function of LaunchSpec -> Channel (spec §4.2),
// dispatching on the transport tag the way a `match` over a small set of
// tagged variants would (spec §9 "avoid inheritance hierarchies").
type Factory struct {
	credentials CredentialProvider
	logDir      string

	mu          sync.Mutex
	credCache   map[string]Credential
}

// NewFactory returns a Factory. creds may be nil, in which case
// NoCredentials{} is used. logDir is the directory stdio backends'
// captured stderr is rotated into (spec §6 "<base>/logs/<backend>.log");
// an empty logDir disables stderr capture to disk (it's still scanned
// in-memory for ConfigError patterns).
func NewFactory(creds CredentialProvider, logDir string) *Factory {
	if creds == nil {
		creds = NoCredentials{}
	}
	return &Factory{
		credentials: creds,
		logDir:      logDir,
		credCache:   make(map[string]Credential),
	}
}

// Dial opens a Channel for spec, dispatching on its Transport tag.
func (f *Factory) Dial(ctx context.Context, spec domain.LaunchSpec) (Channel, error) {
	switch spec.Transport {
	case domain.TransportStdio:
		return f.dialStdio(ctx, spec)
	case domain.TransportHTTPStreaming:
		return f.dialHTTP(ctx, spec)
	case domain.TransportSSE:
		return f.dialSSE(ctx, spec)
	default:
		return nil, tgerrors.NewBackend(tgerrors.KindConfigError, spec.Name,
			fmt.Sprintf("unsupported transport %q", spec.Transport), nil)
	}
}

// credentialFor returns (and caches) the credential for backend, per
// spec §4.2 "caches auth providers per backend".
func (f *Factory) credentialFor(ctx context.Context, backend string) (Credential, error) {
	f.mu.Lock()
	cred, ok := f.credCache[backend]
	f.mu.Unlock()
	if ok {
		return cred, nil
	}

	cred, err := f.credentials.GetForBackend(ctx, backend)
	if err != nil {
		return Credential{}, tgerrors.NewBackend(tgerrors.KindAuthError, backend, "fetching credential", err)
	}

	f.mu.Lock()
	f.credCache[backend] = cred
	f.mu.Unlock()
	return cred, nil
}

// InvalidateCredential drops a backend's cached credential and forwards
// the invalidation to the underlying provider, e.g. after an
// AuthError{Expired} on invocation.
func (f *Factory) InvalidateCredential(backend string) {
	f.mu.Lock()
	delete(f.credCache, backend)
	f.mu.Unlock()
	f.credentials.Invalidate(backend)
}
