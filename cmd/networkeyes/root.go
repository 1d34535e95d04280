// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/networkeyes/lifecycle/internal/config"
)

// NewRootCmd creates the root command for the networkeyes CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmdWithDeps(nil)
}

func newRootCmdWithDeps(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networkeyes",
		Short: "Manage the NetworkEyes plugin for a user",
		Long: `networkeyes installs, updates, deletes and inspects the NetworkEyes
network monitoring plugin. Each user gets a private copy of the plugin files
and a matching set of plugin and module records.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return oops.Code("USAGE").Errorf("a command is required")
		},
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().Bool("json", false, "print results as JSON")

	for _, op := range operations {
		cmd.AddCommand(newOperationCmd(op, deps))
	}
	cmd.AddCommand(newMigrateCmd(deps))

	return cmd
}
