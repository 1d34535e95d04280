// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package pluginfs_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/pluginfs"
	"github.com/networkeyes/lifecycle/pkg/errutil"
)

var fixedTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeSource builds a plugin source tree with a bundle, sources and a README.
func writeSource(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	files := map[string]string{
		"package.json":         `{"name":"braindrive-network"}`,
		"README.md":            "# NetworkEyes\n",
		"dist/remoteEntry.js":  "var remote = {};",
		"dist/remoteEntry.map": "{}",
		"src/index.ts":         "export {};",
		"public/icon.svg":      "<svg/>",
	}
	for name, content := range files {
		path := filepath.Join(src, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return src
}

func newMaterializer(t *testing.T, src string, opts ...pluginfs.Option) (*pluginfs.Materializer, string) {
	t.Helper()
	base := t.TempDir()
	opts = append([]pluginfs.Option{
		pluginfs.WithClock(func() time.Time { return fixedTime }),
		pluginfs.WithLogger(quietLogger()),
	}, opts...)
	m, err := pluginfs.New(base, src, plugin.NetworkEyes(), opts...)
	require.NoError(t, err)
	return m, base
}

func TestMaterializer_PluginDir(t *testing.T) {
	m, base := newMaterializer(t, t.TempDir())
	assert.Equal(t, filepath.Join(base, "u1", "BrainDriveNetwork"), m.PluginDir("u1"))
}

func TestMaterializer_CreateUserDirectory(t *testing.T) {
	m, base := newMaterializer(t, t.TempDir())

	dir, err := m.CreateUserDirectory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "u1", "BrainDriveNetwork"), dir)
	assert.DirExists(t, filepath.Join(dir, "dist"))
	assert.DirExists(t, filepath.Join(dir, "assets"))

	// A second call is not an error.
	again, err := m.CreateUserDirectory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, dir, again)
}

func TestMaterializer_CreateUserDirectory_ReadOnly(t *testing.T) {
	m, _ := newMaterializer(t, t.TempDir(),
		pluginfs.WithFs(afero.NewReadOnlyFs(afero.NewOsFs())))

	_, err := m.CreateUserDirectory(context.Background(), "u1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeCreateFailed)
}

// subdirFailFs fails MkdirAll for paths ending in the named subdirectory.
type subdirFailFs struct {
	afero.Fs
	sub string
}

func (f subdirFailFs) MkdirAll(path string, perm os.FileMode) error {
	if filepath.Base(path) == f.sub {
		return os.ErrPermission
	}
	return f.Fs.MkdirAll(path, perm)
}

func TestMaterializer_CreateUserDirectory_SubdirFailureRemovesNewDir(t *testing.T) {
	m, _ := newMaterializer(t, t.TempDir(),
		pluginfs.WithFs(subdirFailFs{Fs: afero.NewOsFs(), sub: "assets"}))

	_, err := m.CreateUserDirectory(context.Background(), "u1")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeCreateFailed)
	assert.NoDirExists(t, m.PluginDir("u1"))
}

func TestMaterializer_CreateUserDirectory_SubdirFailureKeepsExistingDir(t *testing.T) {
	m, _ := newMaterializer(t, t.TempDir(),
		pluginfs.WithFs(subdirFailFs{Fs: afero.NewOsFs(), sub: "assets"}))
	require.NoError(t, os.MkdirAll(m.PluginDir("u1"), 0o755))

	_, err := m.CreateUserDirectory(context.Background(), "u1")
	require.Error(t, err)
	assert.DirExists(t, m.PluginDir("u1"))
}

func TestMaterializer_CopyPluginFiles(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src)
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)

	res, err := m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"package.json", "README.md", "dist/", "src/", "public/", plugin.ManifestFile,
	}, res.Copied)

	assert.FileExists(t, filepath.Join(dir, "dist", "remoteEntry.js"))
	assert.FileExists(t, filepath.Join(dir, "src", "index.ts"))
	assert.FileExists(t, filepath.Join(dir, "public", "icon.svg"))

	manifest, err := m.ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "u1", manifest.InstalledForUser)
	assert.Equal(t, fixedTime.Format(time.RFC3339Nano), manifest.InstalledAt)
	assert.NoError(t, manifest.VerifyFor("u1", 1))
}

func TestMaterializer_CopyPluginFiles_FollowsSymlinks(t *testing.T) {
	target := writeSource(t)
	src := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(target, "package.json"), filepath.Join(src, "package.json")))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "dist"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(target, "dist", "remoteEntry.js"), filepath.Join(src, "dist", "remoteEntry.js")))
	require.NoError(t, os.Symlink(filepath.Join(target, "src"), filepath.Join(src, "src")))

	m, _ := newMaterializer(t, src)
	ctx := context.Background()
	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)

	res, err := m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", "dist/", "src/", plugin.ManifestFile}, res.Copied)

	for name, want := range map[string]string{
		"package.json":        `{"name":"braindrive-network"}`,
		"dist/remoteEntry.js": "var remote = {};",
		"src/index.ts":        "export {};",
	} {
		path := filepath.Join(dir, name)
		info, err := os.Lstat(path)
		require.NoError(t, err, name)
		assert.Zero(t, info.Mode()&os.ModeSymlink, "%s is a symlink", name)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
	assert.Empty(t, m.MissingFiles(dir, "package.json", plugin.ManifestFile))
}

func TestMaterializer_CopyPluginFiles_SkipsDanglingSymlink(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "package.json"), []byte("{}"), 0o644))
	require.NoError(t, os.Symlink(filepath.Join(src, "gone.md"), filepath.Join(src, "README.md")))

	m, _ := newMaterializer(t, src)
	dir, err := m.CreateUserDirectory(context.Background(), "u1")
	require.NoError(t, err)

	res, err := m.CopyPluginFiles(context.Background(), "u1", dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", plugin.ManifestFile}, res.Copied)
	assert.NoFileExists(t, filepath.Join(dir, "README.md"))
}

func TestMaterializer_CopyPluginFiles_MissingSourceEntries(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "package.json"), []byte("{}"), 0o644))
	m, _ := newMaterializer(t, src)
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)

	res, err := m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"package.json", plugin.ManifestFile}, res.Copied)
	assert.Empty(t, m.MissingFiles(dir, "package.json", plugin.ManifestFile))
	assert.Equal(t, []string{"README.md"}, m.MissingFiles(dir, "README.md"))
}

func TestMaterializer_CopyPluginFiles_PreservesMode(t *testing.T) {
	src := writeSource(t)
	script := filepath.Join(src, "dist", "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))
	m, _ := newMaterializer(t, src)
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)
	_, err = m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, "dist", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestMaterializer_CopyPluginFiles_Exclude(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src, pluginfs.WithExclude("**.map", "src"))
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)

	res, err := m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	assert.NotContains(t, res.Copied, "src/")
	assert.NoDirExists(t, filepath.Join(dir, "src"))
	assert.FileExists(t, filepath.Join(dir, "dist", "remoteEntry.js"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "remoteEntry.map"))
}

func TestMaterializer_WithExclude_InvalidPattern(t *testing.T) {
	_, err := pluginfs.New(t.TempDir(), t.TempDir(), plugin.NetworkEyes(), pluginfs.WithExclude("[unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile exclude pattern")
}

func TestMaterializer_CopyPluginFiles_UpdateReplacesDirectories(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src)
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)
	stale := filepath.Join(dir, "dist", "stale.js")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, err = m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	assert.FileExists(t, stale, "install merges into existing directories")

	_, err = m.CopyPluginFiles(ctx, "u1", dir, true)
	require.NoError(t, err)
	assert.NoFileExists(t, stale, "update replaces existing directories")
	assert.FileExists(t, filepath.Join(dir, "dist", "remoteEntry.js"))
}

func TestMaterializer_CopyPluginFiles_ManifestWriteFails(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src)
	ctx := context.Background()
	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)

	ro, err := pluginfs.New(filepath.Dir(filepath.Dir(dir)), src, plugin.NetworkEyes(),
		pluginfs.WithLogger(quietLogger()),
		pluginfs.WithFs(afero.NewReadOnlyFs(afero.NewOsFs())))
	require.NoError(t, err)

	_, err = ro.CopyPluginFiles(ctx, "u1", dir, false)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeCopyFailed)
}

func TestMaterializer_CopyPluginFiles_CancelledContext(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src)
	dir, err := m.CreateUserDirectory(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.CopyPluginFiles(ctx, "u1", dir, false)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeCopyFailed)
}

func TestMaterializer_ReadManifest_Errors(t *testing.T) {
	m, _ := newMaterializer(t, t.TempDir())
	dir := t.TempDir()

	_, err := m.ReadManifest(dir)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeReadFailed)

	require.NoError(t, os.WriteFile(filepath.Join(dir, plugin.ManifestFile), []byte(`{"plugin_data":{}}`), 0o644))
	_, err = m.ReadManifest(dir)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, pluginfs.CodeReadFailed)
}

func TestMaterializer_RemoveDirectory(t *testing.T) {
	src := writeSource(t)
	m, _ := newMaterializer(t, src)
	ctx := context.Background()

	dir, err := m.CreateUserDirectory(ctx, "u1")
	require.NoError(t, err)
	_, err = m.CopyPluginFiles(ctx, "u1", dir, false)
	require.NoError(t, err)
	require.True(t, m.Exists(dir))

	m.RemoveDirectory(ctx, dir)
	assert.False(t, m.Exists(dir))
	assert.NoDirExists(t, dir)

	// Removing a missing directory is a no-op.
	m.RemoveDirectory(ctx, dir)
}

func TestMaterializer_RemoveDirectory_FailureIsSwallowed(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "u1", "BrainDriveNetwork")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	m, err := pluginfs.New(base, t.TempDir(), plugin.NetworkEyes(),
		pluginfs.WithLogger(quietLogger()),
		pluginfs.WithFs(afero.NewReadOnlyFs(afero.NewOsFs())),
		pluginfs.WithRemoveBackoff(func() retry.Backoff {
			return retry.WithMaxRetries(1, retry.NewConstant(time.Millisecond))
		}))
	require.NoError(t, err)

	assert.NotPanics(t, func() { m.RemoveDirectory(context.Background(), dir) })
	assert.DirExists(t, dir)
}
