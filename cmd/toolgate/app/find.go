// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolgate/pkg/finder"
)

func newFindCmd() *cobra.Command {
	var (
		limit         int
		minConfidence float64
		depth         string
	)
	cmd := &cobra.Command{
		Use:   "find QUERY",
		Short: "Search every configured backend's tools by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := finder.DefaultOptions()
			if limit > 0 {
				opts.Limit = limit
			}
			if minConfidence > 0 {
				opts.MinConfidence = minConfidence
			}
			d, ok := parseFindDepth(depth)
			if !ok {
				return fmt.Errorf("unknown depth %q, want names, descriptions, or full", depth)
			}
			opts.Depth = d

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			orch, err := buildOrchestrator(cfg)
			if err != nil {
				return fmt.Errorf("wiring orchestrator: %w", err)
			}
			if err := orch.Start(cmd.Context()); err != nil {
				return fmt.Errorf("starting orchestrator: %w", err)
			}
			defer orch.Shutdown()

			matches, err := orch.Find(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("finding tools: %w", err)
			}
			out, err := json.MarshalIndent(matches, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling matches: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of matches to return (default spec limit)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Minimum match score to include (default spec threshold)")
	cmd.Flags().StringVar(&depth, "depth", "descriptions", "Result detail: names, descriptions, or full")
	return cmd
}

func parseFindDepth(s string) (finder.Depth, bool) {
	switch strings.ToLower(s) {
	case "names":
		return finder.DepthNamesOnly, true
	case "descriptions", "":
		return finder.DepthWithDescriptions, true
	case "full":
		return finder.DepthFull, true
	default:
		return finder.DepthNamesOnly, false
	}
}
