// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/lawdesk/lawdesk/internal/config"
	"github.com/lawdesk/lawdesk/internal/store"
)

// NewMigrateCmd creates the migrate subcommand. Without a subcommand it
// applies all pending migrations.
func NewMigrateCmd(flags *globalFlags, deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply, inspect or roll back the account schema in PostgreSQL.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, runMigrateUp)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, runMigrateUp)
		},
	})

	var confirmed bool
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all account data)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("migrate down drops all account data; pass --yes to continue")
			}
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				cmd.Println("Rolling back migrations...")
				if err := m.Down(); err != nil {
					return err //nolint:wrapcheck // migrator errors carry their own codes
				}
				cmd.Println("Rollback completed successfully")
				return nil
			})
		},
	}
	down.Flags().BoolVar(&confirmed, "yes", false, "confirm the rollback")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Long: `Record VERSION as the current schema version and clear the dirty flag.
Use this after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Force(v); err != nil {
					return err //nolint:wrapcheck // migrator errors carry their own codes
				}
				cmd.Printf("Forced schema version to %d\n", v)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations (negative N rolls back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_STEPS").With("input", args[0]).Wrap(err)
			}
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				if err := m.Steps(n); err != nil {
					return err //nolint:wrapcheck // migrator errors carry their own codes
				}
				cmd.Printf("Applied %d migration step(s)\n", n)
				return nil
			})
		},
	})

	var asJSON bool
	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, flags, deps, func(cmd *cobra.Command, m Migrator) error {
				st, err := collectMigrationStatus(m)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, st)
				}
				printMigrationStatus(cmd, st)
				return nil
			})
		},
	}
	status.Flags().BoolVar(&asJSON, "json", false, "output in JSON format")
	cmd.AddCommand(status)

	return cmd
}

func runMigrateUp(cmd *cobra.Command, m Migrator) error {
	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

// withMigrator loads the database URL, opens a migrator and closes it after fn.
func withMigrator(cmd *cobra.Command, flags *globalFlags, deps *Deps, fn func(*cobra.Command, Migrator) error) (err error) {
	cfg, err := loadConfig(cmd, flags, false)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg.Log)

	databaseURL, err := getDatabaseURL(cfg)
	if err != nil {
		return err
	}

	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	return fn(cmd, m)
}

// getDatabaseURL returns the configured database URL or CONFIG_INVALID.
func getDatabaseURL(cfg *config.Config) (string, error) {
	if cfg.Database.URL == "" {
		return "", oops.Code("CONFIG_INVALID").
			With("key", "database.url").
			Errorf("database.url is required (set %sDATABASE__URL or --database-url)", config.EnvPrefix)
	}
	return cfg.Database.URL, nil
}

// parseForceVersion reads a leading integer from s. Trailing characters are
// ignored; an empty or blank string is rejected.
func parseForceVersion(s string) (int, error) {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrapf(err, "invalid version %q", s)
	}
	return v, nil
}

type migrationEntry struct {
	Version uint   `json:"version"`
	Name    string `json:"name"`
}

type migrationStatus struct {
	Current uint             `json:"current"`
	Dirty   bool             `json:"dirty"`
	Applied []migrationEntry `json:"applied"`
	Pending []migrationEntry `json:"pending"`
}

func collectMigrationStatus(m Migrator) (*migrationStatus, error) {
	current, dirty, err := m.Version()
	if err != nil {
		return nil, err //nolint:wrapcheck // migrator errors carry their own codes
	}
	applied, err := m.AppliedMigrations()
	if err != nil {
		return nil, err //nolint:wrapcheck // migrator errors carry their own codes
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return nil, err //nolint:wrapcheck // migrator errors carry their own codes
	}

	st := &migrationStatus{
		Current: current,
		Dirty:   dirty,
		Applied: []migrationEntry{},
		Pending: []migrationEntry{},
	}
	for _, v := range applied {
		st.Applied = append(st.Applied, namedMigration(v))
	}
	for _, v := range pending {
		st.Pending = append(st.Pending, namedMigration(v))
	}
	return st, nil
}

func namedMigration(v uint) migrationEntry {
	name, err := store.MigrationName(v)
	if err != nil {
		slog.Debug("migration name lookup failed", "version", v, "error", err)
	}
	return migrationEntry{Version: v, Name: name}
}

func printMigrationStatus(cmd *cobra.Command, st *migrationStatus) {
	state := "clean"
	if st.Dirty {
		state = "DIRTY"
	}
	cmd.Printf("Schema version: %d (%s)\n", st.Current, state)
	cmd.Printf("Applied: %d\n", len(st.Applied))
	for _, e := range st.Applied {
		cmd.Printf("  %s\n", e.Name)
	}
	cmd.Printf("Pending: %d\n", len(st.Pending))
	for _, e := range st.Pending {
		cmd.Printf("  %s\n", e.Name)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
