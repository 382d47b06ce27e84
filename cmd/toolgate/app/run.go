// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var argsJSON string
	cmd := &cobra.Command{
		Use:   "run BACKEND:TOOL",
		Short: "Invoke a tool by its qualified backend:tool id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			toolArgs := map[string]any{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("parsing --args as JSON: %w", err)
				}
			}

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

			result, err := orch.Run(cmd.Context(), cmdArgs[0], toolArgs)
			if err != nil {
				return fmt.Errorf("running %s: %w", cmdArgs[0], err)
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling tool result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&argsJSON, "args", "", "Tool arguments as a JSON object")
	return cmd
}
