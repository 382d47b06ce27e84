// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package backendtransport

import (
	"regexp"

	tgerrors "github.com/stacklok/toolgate/pkg/errors"
)

// stderrPattern is one row of the stdio-backend stderr sniffing table
// (spec §4.2: "scanned for a few well-known 'missing config' patterns").
// This is intentionally a small data table, not branching code, so the
// recognized patterns can grow without touching the scanning logic
// (spec §4.5/§9: heuristics belong in data).
type stderrPattern struct {
	name    string
	match   *regexp.Regexp
	kind    tgerrors.Kind
	message string
}

var stderrPatterns = []stderrPattern{
	{
		name:    "missing api key",
		match:   regexp.MustCompile(`(?i)(api[_ -]?key|token).{0,40}(required|missing|not set|not found)`),
		kind:    tgerrors.KindConfigError,
		message: "backend reported a missing API key or token",
	},
	{
		name:    "usage line",
		match:   regexp.MustCompile(`(?i)^usage:\s`),
		kind:    tgerrors.KindConfigError,
		message: "backend printed a usage line, likely missing required arguments",
	},
	{
		name:    "path not found",
		match:   regexp.MustCompile(`(?i)no such file or directory|ENOENT`),
		kind:    tgerrors.KindConfigError,
		message: "backend reported a missing file or path",
	},
}

// classifyStderrLine matches one captured stderr line against the
// pattern table, returning the first match, if any.
func classifyStderrLine(line string) (*tgerrors.Error, bool) {
	for _, p := range stderrPatterns {
		if p.match.MatchString(line) {
			return tgerrors.New(p.kind, p.message+": "+line, nil), true
		}
	}
	return nil, false
}
