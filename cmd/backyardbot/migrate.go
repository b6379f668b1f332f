// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/backyardbot/backyardbot/internal/config"
	"github.com/backyardbot/backyardbot/internal/store"
)

// migratorFactory is replaced in tests.
var migratorFactory = func(databaseURL string) (Migrator, error) {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the timetable database schema",
		Long: `Apply or roll back the embedded migrations against the PostgreSQL database
named by --database-url, database.url in the config file or DATABASE_URL.`,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL")

	run := func(fn func(cmd *cobra.Command, m Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			m, err := openMigrator(cmd, databaseURL)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(cmd, m)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				cmd.Println("No pending migrations")
				return nil
			}
			cmd.Printf("Applying %d migration(s)...\n", len(pending))
			if err := m.Up(); err != nil {
				return err
			}
			cmd.Println("Migrations completed successfully")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [STEPS]",
		Short: "Roll back migrations (all when STEPS is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 0
			if len(args) == 1 {
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				steps = n
			}
			return run(func(cmd *cobra.Command, m Migrator) error {
				if steps == 0 {
					if err := m.Down(); err != nil {
						return err
					}
				} else if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		RunE: run(func(cmd *cobra.Command, m Migrator) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			pending, err := m.Pending()
			if err != nil {
				return err
			}
			state := "clean"
			if dirty {
				state = "dirty"
			}
			cmd.Printf("version %d (%s), %d pending\n", version, state, len(pending))
			return nil
		}),
	})

	return cmd
}

func openMigrator(cmd *cobra.Command, databaseURL string) (Migrator, error) {
	if databaseURL == "" {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return nil, err
		}
		databaseURL = cfg.Database.URL
	}
	if databaseURL == "" {
		return nil, oops.Code(config.CodeInvalid).
			Errorf("no database configured: set --database-url, database.url or %s", config.DatabaseURLEnv)
	}
	cmd.Println("Connecting to database...")
	return migratorFactory(databaseURL)
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, oops.Code("INVALID_STEPS").With("steps", s).Errorf("steps must be a positive integer, got %q", s)
	}
	return n, nil
}
