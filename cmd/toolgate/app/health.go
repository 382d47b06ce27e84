// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the health state of every configured backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			states := orch.Health()
			out, err := json.MarshalIndent(states, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling health states: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
