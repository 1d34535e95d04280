// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package sqlitetest provides migrated throwaway SQLite databases for tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/internal/store/sqlite"
)

// Open creates a migrated database in a temp dir. The caller closes it.
func Open(t testing.TB) *sqlite.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lifecycle.db")

	m, err := store.NewMigrator(store.DialectSQLite, path)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := sqlite.Open(context.Background(), path)
	require.NoError(t, err)
	return db
}

// CountRows returns the number of rows in table owned by userID.
func CountRows(t testing.TB, db *sqlite.DB, table, userID string) int {
	t.Helper()
	var n int
	err := db.SQL().QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE user_id = ?1`, userID).Scan(&n)
	require.NoError(t, err)
	return n
}

// BreakModuleInsert installs a trigger that aborts inserting a module row
// named name, simulating a failure after the plugin row was written.
func BreakModuleInsert(t testing.TB, db *sqlite.DB, name string) {
	t.Helper()
	_, err := db.SQL().Exec(`CREATE TRIGGER break_module_insert BEFORE INSERT ON module
		WHEN NEW.name = '` + name + `'
		BEGIN SELECT RAISE(ABORT, 'module insert interrupted'); END`)
	require.NoError(t, err)
}
