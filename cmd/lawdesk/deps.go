// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lawdesk Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/lawdesk/lawdesk/internal/config"
	"github.com/lawdesk/lawdesk/internal/httpapi"
	"github.com/lawdesk/lawdesk/internal/store"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// MigratorFactory opens a schema migrator for a database URL.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// CredentialsOpener connects to the account store and the session
	// registry and returns a ready service with a release func.
	// Default: openCredentials
	CredentialsOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (httpapi.Credentials, func(), error)
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.CredentialsOpener == nil {
		out.CredentialsOpener = openCredentials
	}
	return &out
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}
