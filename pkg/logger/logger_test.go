// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugEnabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		envValue string
		want     bool
	}{
		{"empty", "", false},
		{"true", "true", true},
		{"false", "false", false},
		{"invalid", "not-a-bool", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, debugEnabled(tt.envValue))
		})
	}
}

func TestGetInitializesLazily(t *testing.T) {
	// Not parallel: mutates package-level singleton state indirectly via sync.Once.
	l := get()
	assert.NotNil(t, l)
}

func TestWithContextRoundTrip(t *testing.T) {
	t.Parallel()

	scoped := With("component", "test")
	ctx := WithContext(t.Context(), scoped)

	assert.Same(t, scoped, FromContext(ctx))
}

func TestFromContextFallsBackToSingleton(t *testing.T) {
	t.Parallel()

	assert.Same(t, get(), FromContext(t.Context()))
}
