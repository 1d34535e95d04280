// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package postgres implements the record store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/store"
)

// poolIface is the subset of pgxpool.Pool used by DB. It is satisfied by
// pgxmock pools in tests.
type poolIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB is a store.DB backed by a pgx connection pool.
type DB struct {
	pool poolIface
}

var _ store.DB = (*DB)(nil)

// New wraps an existing pool.
func New(pool poolIface) *DB {
	return &DB{pool: pool}
}

// Open connects to dsn and waits until the server answers a ping.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	backoff := retry.WithMaxRetries(4, retry.NewExponential(100*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "ping").Wrap(err)
	}
	return &DB{pool: pool}, nil
}

// Begin starts a transaction.
func (db *DB) Begin(ctx context.Context) (store.Session, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}
	return &session{tx: tx}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	db.pool.Close()
}

type session struct {
	tx pgx.Tx
}

const findPluginSQL = `SELECT id, name, version, enabled, created_at, updated_at
	FROM plugin WHERE user_id = $1 AND plugin_slug = $2`

func (s *session) FindPlugin(ctx context.Context, userID, slug string) (*store.PluginRecord, error) {
	var rec store.PluginRecord
	err := s.tx.QueryRow(ctx, findPluginSQL, userID, slug).
		Scan(&rec.ID, &rec.Name, &rec.Version, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.With("user_id", userID).With("plugin_slug", slug).Wrap(store.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find plugin").With("user_id", userID).Wrap(err)
	}
	return &rec, nil
}

var (
	insertPluginSQL = store.InsertSQL("plugin", store.PluginColumns, store.Dollar)
	insertModuleSQL = store.InsertSQL("module", store.ModuleColumns, store.Dollar)
	touchPluginSQL  = store.UpdateByOwnerSQL("plugin", store.TouchColumns, store.Dollar)
)

func (s *session) InsertPluginAndModules(ctx context.Context, userID string, set plugin.Set, now time.Time) (store.InsertResult, error) {
	pluginRow, err := store.NewPluginRow(userID, set, now)
	if err != nil {
		return store.InsertResult{}, err
	}
	moduleRows, err := store.NewModuleRows(userID, set, now)
	if err != nil {
		return store.InsertResult{}, err
	}

	if _, err := s.tx.Exec(ctx, insertPluginSQL, pluginRow.Values()...); err != nil {
		return store.InsertResult{}, writeError(err, "insert plugin", pluginRow.ID)
	}

	result := store.InsertResult{PluginID: pluginRow.ID}
	for _, row := range moduleRows {
		if _, err := s.tx.Exec(ctx, insertModuleSQL, row.Values()...); err != nil {
			return store.InsertResult{}, writeError(err, "insert module", row.ID)
		}
		result.ModuleIDs = append(result.ModuleIDs, row.ID)
	}
	return result, nil
}

func (s *session) DeletePluginAndModules(ctx context.Context, userID, pluginID string) (int64, error) {
	tag, err := s.tx.Exec(ctx, `DELETE FROM module WHERE plugin_id = $1 AND user_id = $2`, pluginID, userID)
	if err != nil {
		return 0, oops.With("operation", "delete modules").With("plugin_id", pluginID).Wrap(err)
	}
	deleted := tag.RowsAffected()

	tag, err = s.tx.Exec(ctx, `DELETE FROM plugin WHERE id = $1 AND user_id = $2`, pluginID, userID)
	if err != nil {
		return 0, oops.With("operation", "delete plugin").With("plugin_id", pluginID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return 0, oops.With("plugin_id", pluginID).With("user_id", userID).
			Wrapf(store.ErrNotFound, "plugin not found or not owned by user")
	}
	return deleted, nil
}

func (s *session) ListModules(ctx context.Context, userID, pluginID string) ([]store.ModuleRecord, error) {
	rows, err := s.tx.Query(ctx,
		`SELECT id, name, enabled FROM module WHERE plugin_id = $1 AND user_id = $2 ORDER BY priority, name`,
		pluginID, userID)
	if err != nil {
		return nil, oops.With("operation", "list modules").With("plugin_id", pluginID).Wrap(err)
	}
	defer rows.Close()

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
	tag, err := s.tx.Exec(ctx, touchPluginSQL, args...)
	if err != nil {
		return oops.With("operation", "touch plugin").With("plugin_id", pluginID).Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.With("plugin_id", pluginID).With("user_id", userID).Wrap(store.ErrNotFound)
	}
	return nil
}

func (s *session) Commit(ctx context.Context) error {
	if err := s.tx.Commit(ctx); err != nil {
		return oops.Code("TX_COMMIT_FAILED").Wrap(err)
	}
	return nil
}

func (s *session) Rollback(ctx context.Context) error {
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return oops.Code("TX_ROLLBACK_FAILED").Wrap(err)
	}
	return nil
}

// writeError maps unique violations to store.ErrConflict.
func writeError(err error, operation, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return oops.With("operation", operation).
			With("id", id).
			With("constraint", pgErr.ConstraintName).
			Wrapf(store.ErrConflict, "%s", pgErr.Message)
	}
	return oops.With("operation", operation).With("id", id).Wrap(err)
}
