// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package main

import (
	"context"
	"path/filepath"

	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/internal/store/postgres"
	"github.com/networkeyes/lifecycle/internal/store/sqlite"
	"github.com/networkeyes/lifecycle/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// Nil fields use their default implementations.
type Deps struct {
	// OpenDB connects to the record store.
	// Default: postgres.Open or sqlite.Open by dialect
	OpenDB func(ctx context.Context, dialect store.Dialect, url string) (store.DB, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(dialect store.Dialect, url string) (Migrator, error)
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.OpenDB == nil {
		out.OpenDB = openDB
	}
	if out.NewMigrator == nil {
		out.NewMigrator = func(dialect store.Dialect, url string) (Migrator, error) {
			if err := ensureSQLiteDir(dialect, url); err != nil {
				return nil, err
			}
			m, err := store.NewMigrator(dialect, url)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	return &out
}

func openDB(ctx context.Context, dialect store.Dialect, url string) (store.DB, error) {
	if dialect == store.DialectSQLite {
		if err := ensureSQLiteDir(dialect, url); err != nil {
			return nil, err
		}
		db, err := sqlite.Open(ctx, url)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := postgres.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func ensureSQLiteDir(dialect store.Dialect, path string) error {
	if dialect != store.DialectSQLite {
		return nil
	}
	return xdg.EnsureDir(filepath.Dir(path))
}
