// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package store persists plugin and module records for each user.
//
// The package defines the transactional Session contract and the row
// encoding shared by the dialect adapters in store/postgres and store/sqlite.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/networkeyes/lifecycle/internal/plugin"
)

// Sentinel errors returned by every adapter, wrapped with oops context.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// PluginRecord is the subset of a plugin row read back by lookups.
type PluginRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModuleRecord is the subset of a module row read back by lookups.
type ModuleRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// InsertResult holds the ids of the rows created by an install.
type InsertResult struct {
	PluginID  string
	ModuleIDs []string
}

// DB opens sessions against a record store.
type DB interface {
	Begin(ctx context.Context) (Session, error)
	Close()
}

// Session is a single database transaction. Every method runs inside it;
// nothing is visible to other sessions until Commit. Rollback after Commit
// is a no-op.
type Session interface {
	// FindPlugin looks up the plugin row by (user_id, plugin_slug).
	// Returns ErrNotFound when absent.
	FindPlugin(ctx context.Context, userID, slug string) (*PluginRecord, error)

	// InsertPluginAndModules inserts the plugin row, then one module row per
	// module descriptor. Returns ErrConflict when a row already exists.
	InsertPluginAndModules(ctx context.Context, userID string, set plugin.Set, now time.Time) (InsertResult, error)

	// DeletePluginAndModules deletes module rows, then the plugin row, and
	// returns the number of module rows deleted. Returns ErrNotFound when the
	// plugin row does not exist or is owned by another user.
	DeletePluginAndModules(ctx context.Context, userID, pluginID string) (int64, error)

	// ListModules returns the module rows of a plugin, ordered by priority.
	ListModules(ctx context.Context, userID, pluginID string) ([]ModuleRecord, error)

	// TouchPlugin refreshes the descriptor columns and timestamps of an
	// installed plugin. Returns ErrNotFound when no row matches.
	TouchPlugin(ctx context.Context, userID, pluginID string, set plugin.Set, now time.Time) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
