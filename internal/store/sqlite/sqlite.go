// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package sqlite implements the record store on an embedded SQLite database
// using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/store"
)

// busyTimeout is how long a writer waits for the database lock.
const busyTimeout = 10 * time.Second

// DB is a store.DB backed by a SQLite database file.
type DB struct {
	db *sql.DB
}

var _ store.DB = (*DB)(nil)

// DSN builds the driver connection string for a database file. Transactions
// take the write lock when they begin, so concurrent writers queue on the
// busy timeout instead of failing at commit.
func DSN(path string) string {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "sqlite://"), "file:")
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout("+strconv.FormatInt(busyTimeout.Milliseconds(), 10)+")")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Open opens the database file at path.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("DB_CONNECT_FAILED").With("path", path).Wrap(err)
	}
	return &DB{db: db}, nil
}

// Begin starts a transaction holding the write lock.
func (d *DB) Begin(ctx context.Context) (store.Session, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	return &session{tx: tx}, nil
}

// Close closes the database.
func (d *DB) Close() {
	_ = d.db.Close() //nolint:errcheck // nothing to do on close failure
}

// SQL returns the underlying handle.
func (d *DB) SQL() *sql.DB {
	return d.db
}

type session struct {
	tx *sql.Tx
}

var (
	insertPluginSQL = store.InsertSQL("plugin", store.PluginColumns, store.Question)
	insertModuleSQL = store.InsertSQL("module", store.ModuleColumns, store.Question)
	touchPluginSQL  = store.UpdateByOwnerSQL("plugin", store.TouchColumns, store.Question)
)

func (s *session) FindPlugin(ctx context.Context, userID, slug string) (*store.PluginRecord, error) {
	var rec store.PluginRecord
	err := s.tx.QueryRowContext(ctx,
		`SELECT id, name, version, enabled, created_at, updated_at
		FROM plugin WHERE user_id = ?1 AND plugin_slug = ?2`, userID, slug).
		Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oops.With("user_id", userID).With("plugin_slug", slug).Wrap(store.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find plugin").With("user_id", userID).Wrap(err)
	}
	return &rec, nil
}

func (s *session) InsertPluginAndModules(ctx context.Context, userID string, set plugin.Set, now time.Time) (store.InsertResult, error) {
	pluginRow, err := store.NewPluginRow(userID, set, now)
	if err != nil {
		return store.InsertResult{}, err
	}
	moduleRows, err := store.NewModuleRows(userID, set, now)
	if err != nil {
		return store.InsertResult{}, err
	}

	if _, err := s.tx.ExecContext(ctx, insertPluginSQL, pluginRow.Values()...); err != nil {
		return store.InsertResult{}, writeError(err, "insert plugin", pluginRow.ID)
	}

	result := store.InsertResult{PluginID: pluginRow.ID}
	for _, row := range moduleRows {
		if _, err := s.tx.ExecContext(ctx, insertModuleSQL, row.Values()...); err != nil {
			return store.InsertResult{}, writeError(err, "insert module", row.ID)
		}
		result.ModuleIDs = append(result.ModuleIDs, row.ID)
	}
	return result, nil
}

func (s *session) DeletePluginAndModules(ctx context.Context, userID, pluginID string) (int64, error) {
	res, err := s.tx.ExecContext(ctx, `DELETE FROM module WHERE plugin_id = ?1 AND user_id = ?2`, pluginID, userID)
	if err != nil {
		return 0, oops.With("operation", "delete modules").With("plugin_id", pluginID).Wrap(err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, oops.With("operation", "delete modules").With("plugin_id", pluginID).Wrap(err)
	}

	res, err = s.tx.ExecContext(ctx, `DELETE FROM plugin WHERE id = ?1 AND user_id = ?2`, pluginID, userID)
	if err != nil {
		return 0, oops.With("operation", "delete plugin").With("plugin_id", pluginID).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.With("operation", "delete plugin").With("plugin_id", pluginID).Wrap(err)
	}
	if n == 0 {
		return 0, oops.With("plugin_id", pluginID).With("user_id", userID).
			Wrapf(store.ErrNotFound, "plugin not found or not owned by user")
	}
	return deleted, nil
}

func (s *session) ListModules(ctx context.Context, userID, pluginID string) ([]store.ModuleRecord, error) {
	rows, err := s.tx.QueryContext(ctx,
		`SELECT id, name, enabled FROM module WHERE plugin_id = ?1 AND user_id = ?2 ORDER BY priority, name`,
		pluginID, userID)
	if err != nil {
		return nil, oops.With("operation", "list modules").With("plugin_id", pluginID).Wrap(err)
	}
	defer rows.Close() //nolint:errcheck // read-only cursor

	var modules []store.ModuleRecord
	for rows.Next() {
		var m store.ModuleRecord
		if err := rows.Scan(&m.ID, &m.Name, &m.Enabled); err != nil {
			return nil, oops.With("operation", "scan module row").Wrap(err)
		}
		modules = append(modules, m)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate modules").Wrap(err)
	}
	return modules, nil
}

func (s *session) TouchPlugin(ctx context.Context, userID, pluginID string, set plugin.Set, now time.Time) error {
	row, err := store.NewPluginRow(userID, set, now)
	if err != nil {
		return err
	}
	args := append(row.TouchValues(), pluginID, userID)
	res, err := s.tx.ExecContext(ctx, touchPluginSQL, args...)
	if err != nil {
		return oops.With("operation", "touch plugin").With("plugin_id", pluginID).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return oops.With("operation", "touch plugin").With("plugin_id", pluginID).Wrap(err)
	}
	if n == 0 {
		return oops.With("plugin_id", pluginID).With("user_id", userID).Wrap(store.ErrNotFound)
	}
	return nil
}

func (s *session) Commit(_ context.Context) error {
	if err := s.tx.Commit(); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

func (s *session) Rollback(_ context.Context) error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return oops.Code("TX_ROLLBACK_FAILED").Wrap(err)
	}
	return nil
}

// writeError maps primary key and unique constraint failures to
// store.ErrConflict.
func writeError(err error, operation, id string) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return conflict(operation, id, sqliteErr)
		case sqlite3.SQLITE_CONSTRAINT:
			if strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed") {
				return conflict(operation, id, sqliteErr)
			}
		}
	}
	return oops.With("operation", operation).With("id", id).Wrap(err)
}

func conflict(operation, id string, err error) error {
	return oops.With("operation", operation).
		With("id", id).
		Wrapf(store.ErrConflict, "%s", err.Error())
}
