// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/networkeyes/lifecycle/internal/lifecycle"
	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/pluginfs"
	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/internal/store/sqlite"
	"github.com/networkeyes/lifecycle/internal/store/sqlite/sqlitetest"
)

var installedAt = time.Date(2026, 7, 4, 10, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires a manager to a real SQLite database and temp directories.
type harness struct {
	t    *testing.T
	db   *sqlite.DB
	fs   *pluginfs.Materializer
	set  plugin.Set
	base string
	rec  *recorder
}

func newHarness(t *testing.T) *harness {
	return newHarnessFor(t, plugin.NetworkEyes())
}

func newHarnessFor(t *testing.T, set plugin.Set) *harness {
	t.Helper()
	src := t.TempDir()
	for name, content := range map[string]string{
		"package.json":        `{"name":"plugin"}`,
		"README.md":           "readme\n",
		"dist/remoteEntry.js": "var remote = {};",
	} {
		path := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	base := t.TempDir()
	fs, err := pluginfs.New(base, src, set,
		pluginfs.WithLogger(quietLogger()),
		pluginfs.WithClock(func() time.Time { return installedAt }))
	require.NoError(t, err)

	db := sqlitetest.Open(t)
	t.Cleanup(db.Close)

	return &harness{
		t:    t,
		db:   db,
		fs:   fs,
		set:  set,
		base: base,
		rec:  &recorder{},
	}
}

func (h *harness) manager(fs lifecycle.Materializer) *lifecycle.Manager {
	if fs == nil {
		fs = h.fs
	}
	return lifecycle.New(h.set, fs,
		lifecycle.WithLogger(quietLogger()),
		lifecycle.WithMetrics(h.rec),
		lifecycle.WithClock(func() time.Time { return installedAt }))
}

func (h *harness) session() *trackingSession {
	h.t.Helper()
	s, err := h.db.Begin(context.Background())
	require.NoError(h.t, err)
	return &trackingSession{Session: s}
}

func (h *harness) install(userID string) lifecycle.InstallResult {
	h.t.Helper()
	res := h.manager(nil).Install(context.Background(), userID, h.session())
	require.True(h.t, res.Success, "install failed: %s", res.Error)
	return res
}

func (h *harness) status(userID string) lifecycle.StatusResult {
	h.t.Helper()
	return h.manager(nil).Status(context.Background(), userID, h.session())
}

func (h *harness) rows(table, userID string) int {
	h.t.Helper()
	return sqlitetest.CountRows(h.t, h.db, table, userID)
}

func (h *harness) userDir(userID string) string {
	return filepath.Join(h.base, userID)
}

// trackingSession counts rollbacks and lets tests inject failures.
type trackingSession struct {
	store.Session
	rollbacks int
	commitErr error
	deleteErr error
	findErr   error
	insertErr error
	touchErr  error
}

func (s *trackingSession) FindPlugin(ctx context.Context, userID, slug string) (*store.PluginRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Session.FindPlugin(ctx, userID, slug)
}

func (s *trackingSession) InsertPluginAndModules(ctx context.Context, userID string, set plugin.Set, now time.Time) (store.InsertResult, error) {
	if s.insertErr != nil {
		return store.InsertResult{}, s.insertErr
	}
	return s.Session.InsertPluginAndModules(ctx, userID, set, now)
}

func (s *trackingSession) DeletePluginAndModules(ctx context.Context, userID, pluginID string) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.Session.DeletePluginAndModules(ctx, userID, pluginID)
}

func (s *trackingSession) TouchPlugin(ctx context.Context, userID, pluginID string, set plugin.Set, now time.Time) error {
	if s.touchErr != nil {
		return s.touchErr
	}
	return s.Session.TouchPlugin(ctx, userID, pluginID, set, now)
}

func (s *trackingSession) Commit(ctx context.Context) error {
	if s.commitErr != nil {
		return s.commitErr
	}
	return s.Session.Commit(ctx)
}

func (s *trackingSession) Rollback(ctx context.Context) error {
	s.rollbacks++
	return s.Session.Rollback(ctx)
}

// faultyFS wraps a materializer with injectable failures.
type faultyFS struct {
	*pluginfs.Materializer
	createErr       error
	copyErr         error
	corruptManifest bool
	afterCreate     func()
	removed         []string
}

func (f *faultyFS) CreateUserDirectory(ctx context.Context, userID string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	dir, err := f.Materializer.CreateUserDirectory(ctx, userID)
	if err == nil && f.afterCreate != nil {
		f.afterCreate()
	}
	return dir, err
}

func (f *faultyFS) CopyPluginFiles(ctx context.Context, userID, dir string, isUpdate bool) (pluginfs.CopyResult, error) {
	if f.copyErr != nil {
		return pluginfs.CopyResult{}, f.copyErr
	}
	res, err := f.Materializer.CopyPluginFiles(ctx, userID, dir, isUpdate)
	if err == nil && f.corruptManifest {
		err = os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(`{"plugin_data":`), 0o644)
	}
	return res, err
}

func (f *faultyFS) RemoveDirectory(ctx context.Context, path string) {
	f.removed = append(f.removed, path)
	f.Materializer.RemoveDirectory(ctx, path)
}

// recorder captures metrics calls.
type recorder struct {
	mu            sync.Mutex
	operations    []string
	compensations map[string]int
}

func (r *recorder) ObserveOperation(operation, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations = append(r.operations, operation+":"+result)
}

func (r *recorder) RecordCompensation(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.compensations == nil {
		r.compensations = make(map[string]int)
	}
	r.compensations[action]++
}
