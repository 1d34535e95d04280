// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package pluginfs materializes plugin files into per-user directories.
package pluginfs

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/otiai10/copy"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"github.com/spf13/afero"

	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/pkg/errutil"
)

// Error codes returned by the materializer.
const (
	CodeCreateFailed = "PLUGIN_DIR_CREATE_FAILED"
	CodeCopyFailed   = "PLUGIN_COPY_FAILED"
	CodeReadFailed   = "PLUGIN_MANIFEST_READ_FAILED"
)

// Entries copied from the plugin source directory, in copy order.
var (
	sourceFiles = []string{"package.json", "README.md"}
	sourceDirs  = []string{"dist", "src", "public"}
)

// Subdirectories created in every user plugin directory.
var scaffoldDirs = []string{"dist", "assets"}

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// CopyResult lists the entries placed into the target directory. Directories
// carry a trailing slash.
type CopyResult struct {
	Copied []string `json:"copied_files"`
}

// Materializer creates, fills and removes user plugin directories.
//
// Directory creation, removal and the manifest go through the afero
// filesystem; the plugin payload is copied with otiai10/copy so that mode
// bits and timestamps survive, which requires an OS-backed filesystem.
type Materializer struct {
	fs        afero.Fs
	baseDir   string
	sourceDir string
	set       plugin.Set
	exclude   []glob.Glob
	now       func() time.Time
	logger    *slog.Logger
	backoff   func() retry.Backoff
}

// Option configures a Materializer.
type Option func(*Materializer) error

// WithFs sets the filesystem used for directory and manifest operations.
func WithFs(fsys afero.Fs) Option {
	return func(m *Materializer) error {
		m.fs = fsys
		return nil
	}
}

// WithExclude skips source entries whose path relative to the source
// directory matches any of the glob patterns ('/' separated).
func WithExclude(patterns ...string) Option {
	return func(m *Materializer) error {
		for _, p := range patterns {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return oops.With("pattern", p).Wrapf(err, "compile exclude pattern")
			}
			m.exclude = append(m.exclude, g)
		}
		return nil
	}
}

// WithClock sets the clock used for manifest timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) error {
		m.now = now
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Materializer) error {
		m.logger = l
		return nil
	}
}

// WithRemoveBackoff sets the backoff used when retrying directory removal.
func WithRemoveBackoff(b func() retry.Backoff) Option {
	return func(m *Materializer) error {
		m.backoff = b
		return nil
	}
}

// New creates a Materializer placing user directories under baseDir and
// copying plugin files from sourceDir.
func New(baseDir, sourceDir string, set plugin.Set, opts ...Option) (*Materializer, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, oops.With("base_dir", baseDir).Wrapf(err, "resolve plugins directory")
	}
	absSource, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, oops.With("source_dir", sourceDir).Wrapf(err, "resolve plugin source directory")
	}

	m := &Materializer{
		fs:        afero.NewOsFs(),
		baseDir:   absBase,
		sourceDir: absSource,
		set:       set.Clone(),
		now:       time.Now,
		logger:    slog.Default(),
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewExponential(25*time.Millisecond))
		},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PluginDir returns the absolute plugin directory for a user.
func (m *Materializer) PluginDir(userID string) string {
	return filepath.Join(m.baseDir, userID, m.set.Plugin.Slug)
}

// CreateUserDirectory creates the user's plugin directory with its dist and
// assets subdirectories. Existing directories are not an error. A plugin
// directory created by a call that then fails is removed again.
func (m *Materializer) CreateUserDirectory(ctx context.Context, userID string) (string, error) {
	dir := m.PluginDir(userID)
	existed, _ := afero.DirExists(m.fs, dir)
	if err := m.fs.MkdirAll(dir, dirPerm); err != nil {
		return "", oops.Code(CodeCreateFailed).With("dir", dir).Wrap(err)
	}
	for _, sub := range scaffoldDirs {
		if err := m.fs.MkdirAll(filepath.Join(dir, sub), dirPerm); err != nil {
			if !existed {
				m.RemoveDirectory(context.WithoutCancel(ctx), dir)
			}
			return "", oops.Code(CodeCreateFailed).With("dir", filepath.Join(dir, sub)).Wrap(err)
		}
	}

	m.logger.Info("created plugin directory", "dir", dir, "user_id", userID)
	return dir, nil
}

// CopyPluginFiles copies the allow-listed files and directories from the
// plugin source into targetDir, then writes the manifest. Entries missing at
// the source are skipped. With isUpdate an existing destination entry is
// removed before it is copied again; otherwise the copy merges.
func (m *Materializer) CopyPluginFiles(ctx context.Context, userID, targetDir string, isUpdate bool) (CopyResult, error) {
	var result CopyResult

	for _, name := range sourceFiles {
		copied, err := m.copyEntry(ctx, name, targetDir, false)
		if err != nil {
			return result, err
		}
		if copied {
			result.Copied = append(result.Copied, name)
		}
	}

	for _, name := range sourceDirs {
		copied, err := m.copyEntry(ctx, name, targetDir, isUpdate)
		if err != nil {
			return result, err
		}
		if copied {
			result.Copied = append(result.Copied, name+"/")
		}
	}

	if err := m.writeManifest(userID, targetDir); err != nil {
		return result, err
	}
	result.Copied = append(result.Copied, plugin.ManifestFile)

	m.logger.Info("copied plugin files",
		"count", len(result.Copied),
		"dir", targetDir,
		"update", isUpdate)
	return result, nil
}

func (m *Materializer) copyEntry(ctx context.Context, name, targetDir string, replace bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, oops.Code(CodeCopyFailed).With("entry", name).Wrap(err)
	}

	src := filepath.Join(m.sourceDir, name)
	dst := filepath.Join(targetDir, name)

	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code(CodeCopyFailed).With("entry", name).With("src", src).Wrap(err)
	}
	if m.excluded(name) {
		return false, nil
	}

	if replace && info.IsDir() {
		if err := m.fs.RemoveAll(dst); err != nil {
			return false, oops.Code(CodeCopyFailed).With("entry", name).With("dst", dst).Wrapf(err, "remove previous copy")
		}
	}

	opts := copy.Options{
		PreserveTimes:     true,
		PermissionControl: copy.PerservePermission,
		OnSymlink: func(string) copy.SymlinkAction {
			return copy.Deep
		},
		OnDirExists: func(_, _ string) copy.DirExistsAction {
			return copy.Merge
		},
		Skip: func(_ os.FileInfo, path, _ string) (bool, error) {
			rel, err := filepath.Rel(m.sourceDir, path)
			if err != nil {
				return false, err
			}
			return m.excluded(rel), nil
		},
	}
	if err := copy.Copy(src, dst, opts); err != nil {
		return false, oops.Code(CodeCopyFailed).With("entry", name).With("src", src).With("dst", dst).Wrap(err)
	}
	return true, nil
}

func (m *Materializer) excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (m *Materializer) writeManifest(userID, targetDir string) error {
	path := filepath.Join(targetDir, plugin.ManifestFile)
	data, err := plugin.NewManifest(m.set, userID, m.now()).Marshal()
	if err != nil {
		return oops.Code(CodeCopyFailed).With("file", path).Wrap(err)
	}
	// Concurrent installs into the same directory read the manifest while
	// others write it, so it is replaced with a rename.
	tmp, err := afero.TempFile(m.fs, targetDir, "."+plugin.ManifestFile+"-*")
	if err != nil {
		return oops.Code(CodeCopyFailed).With("file", path).Wrapf(err, "write manifest")
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = m.fs.Chmod(tmpName, filePerm)
	}
	if werr == nil {
		werr = m.fs.Rename(tmpName, path)
	}
	if werr != nil {
		_ = m.fs.Remove(tmpName)
		return oops.Code(CodeCopyFailed).With("file", path).Wrapf(werr, "write manifest")
	}
	return nil
}

// ReadManifest reads and validates the manifest in targetDir.
func (m *Materializer) ReadManifest(targetDir string) (*plugin.Manifest, error) {
	path := filepath.Join(targetDir, plugin.ManifestFile)
	data, err := afero.ReadFile(m.fs, path)
	if err != nil {
		return nil, oops.Code(CodeReadFailed).With("file", path).Wrap(err)
	}
	manifest, err := plugin.ParseManifest(data)
	if err != nil {
		return nil, oops.Code(CodeReadFailed).With("file", path).Wrap(err)
	}
	return manifest, nil
}

// MissingFiles returns which of names do not exist in dir.
func (m *Materializer) MissingFiles(dir string, names ...string) []string {
	var missing []string
	for _, name := range names {
		ok, err := afero.Exists(m.fs, filepath.Join(dir, name))
		if err != nil || !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Exists reports whether path exists and is a directory.
func (m *Materializer) Exists(path string) bool {
	ok, err := afero.DirExists(m.fs, path)
	return err == nil && ok
}

// RemoveDirectory recursively deletes path. A missing path is not an error.
// It is always called as compensation, so it never fails: errors are
// retried, then logged.
func (m *Materializer) RemoveDirectory(ctx context.Context, path string) {
	ok, err := afero.Exists(m.fs, path)
	if err == nil && !ok {
		return
	}

	err = retry.Do(ctx, m.backoff(), func(_ context.Context) error {
		if err := m.fs.RemoveAll(path); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		errutil.LogError(m.logger, "failed to remove plugin directory",
			oops.With("dir", path).Wrap(err))
		return
	}
	m.logger.Info("removed plugin directory", "dir", path)
}
