// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolgate/pkg/domain"
	"github.com/stacklok/toolgate/pkg/logger"
)

func newBackendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Manage configured backends",
	}
	cmd.AddCommand(newBackendAddCmd())
	cmd.AddCommand(newBackendRemoveCmd())
	cmd.AddCommand(newBackendListCmd())
	return cmd
}

func newBackendAddCmd() *cobra.Command {
	var (
		transport   string
		command     string
		args        []string
		baseURL     string
		category    string
		description string
		file        string
	)
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Register a new backend and discover its tools",
		Long: `Register a new backend and discover its tools, either from flags or from a YAML
launch-spec file (--file), the human-editable import format for the Profile Store's JSON
document of record.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			spec := domain.LaunchSpec{
				Name:        cmdArgs[0],
				Transport:   domain.TransportKind(transport),
				Command:     command,
				Args:        args,
				BaseURL:     baseURL,
				Category:    category,
				Description: description,
			}
			if file != "" {
				loaded, err := loadLaunchSpecFile(file)
				if err != nil {
					return err
				}
				loaded.Name = cmdArgs[0]
				spec = loaded
			}

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			orch, err := buildOrchestrator(cfg)
			if err != nil {
				return fmt.Errorf("wiring orchestrator: %w", err)
			}

			report, err := orch.AddBackend(cmd.Context(), spec)
			if err != nil {
				return fmt.Errorf("adding backend %s: %w", spec.Name, err)
			}
			logger.Infof("registered backend %s (%s %s), discovered %d tools",
				report.Backend, report.ServerInfo.Name, report.ServerInfo.Version, len(report.Tools))
			return nil
		},
	}
	cmd.Flags().StringVar(&transport, "transport", string(domain.TransportStdio), "Transport: stdio, http_streaming, or sse")
	cmd.Flags().StringVar(&command, "command", "", "Command to launch (stdio transport)")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Argument to pass to the launch command (repeatable)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the backend (http_streaming/sse transport)")
	cmd.Flags().StringVar(&category, "category", "", "Capability category feeding embedding augmentation")
	cmd.Flags().StringVar(&description, "description", "", "Short description of the backend")
	cmd.Flags().StringVar(&file, "file", "", "Read the launch spec from a YAML file instead of flags")
	return cmd
}

// loadLaunchSpecFile reads a YAML launch spec, the human-editable import
// format feeding the Profile Store's JSON document of record.
func loadLaunchSpecFile(path string) (domain.LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.LaunchSpec{}, fmt.Errorf("reading launch spec %s: %w", path, err)
	}
	var spec domain.LaunchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return domain.LaunchSpec{}, fmt.Errorf("parsing launch spec %s: %w", path, err)
	}
	return spec, nil
}

func newBackendRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Deregister a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			orch, err := buildOrchestrator(cfg)
			if err != nil {
				return fmt.Errorf("wiring orchestrator: %w", err)
			}
			if err := orch.RemoveBackend(cmdArgs[0]); err != nil {
				return fmt.Errorf("removing backend %s: %w", cmdArgs[0], err)
			}
			logger.Infof("removed backend %s", cmdArgs[0])
			return nil
		},
	}
}

func newBackendListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured backends",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			profileStore, err := profileStoreFor(cfg)
			if err != nil {
				return err
			}
			specs, err := profileStore.List()
			if err != nil {
				return fmt.Errorf("listing profile: %w", err)
			}
			out, err := json.MarshalIndent(specs, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling backend list: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
