// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the backyardbot CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backyardbot",
		Short: "backyardbot - garden irrigation controller",
		Long: `backyardbot waters the garden on a weekly timetable. The backend runs
plugins for the timetable, automatic watering and the valves; dashboards
talk to it over a single WebSocket.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/backyardbot/backyardbot.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewSendCmd())
	cmd.AddCommand(NewTimetableCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
