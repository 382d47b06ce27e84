// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the toolgate command-line
// application: the cobra command tree wiring spec §6's configuration
// into the Orchestrator Facade and its MCP wire binding.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/toolgate/pkg/config"
	"github.com/stacklok/toolgate/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "toolgate",
	DisableAutoGenTag: true,
	Short:             "Aggregating MCP proxy exposing find and run over a fleet of backend tool servers",
	Long: `toolgate sits between an AI client and a fleet of MCP backend tool servers. Instead of
exposing every backend tool directly, it exposes exactly two: find (semantic search over every
configured backend's tools) and run (invoke a tool by its qualified backend:tool id). This keeps
a client's own tool list small and stable regardless of how many backends are actually wired in.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd builds the toolgate command tree.
func NewRootCmd() *cobra.Command {
	v := viper.GetViper()
	if err := config.Bind(v); err != nil {
		logger.Errorf("binding configuration: %v", err)
	}

	rootCmd.PersistentFlags().String("base-dir", "", "Override the state directory (default ~/.toolgate)")
	rootCmd.PersistentFlags().String("profile", "", "Profile name to operate on (default \"default\")")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	if err := v.BindPFlag("base_dir_override", rootCmd.PersistentFlags().Lookup("base-dir")); err != nil {
		logger.Errorf("binding base-dir flag: %v", err)
	}
	if err := v.BindPFlag("profile_name", rootCmd.PersistentFlags().Lookup("profile")); err != nil {
		logger.Errorf("binding profile flag: %v", err)
	}
	if err := v.BindPFlag("debug_logging", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newBackendCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.SilenceUsage = true
	return rootCmd
}

func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

func getVersion() string {
	return "dev"
}
