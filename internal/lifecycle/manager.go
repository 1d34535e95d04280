// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package lifecycle installs, updates, deletes and inspects the plugin for a
// user. Every operation keeps the user's plugin directory and the plugin and
// module records consistent: a failed step is compensated by rolling back the
// caller's session and, where the step created files, removing the directory.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/pluginfs"
	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/pkg/errutil"
)

var tracer = otel.Tracer("networkeyes/lifecycle")

// Operation names used in logs, spans and metrics.
const (
	OpInstall = "install"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpStatus  = "status"
)

// Materializer manages the user's plugin directory.
type Materializer interface {
	PluginDir(userID string) string
	CreateUserDirectory(ctx context.Context, userID string) (string, error)
	CopyPluginFiles(ctx context.Context, userID, targetDir string, isUpdate bool) (pluginfs.CopyResult, error)
	ReadManifest(targetDir string) (*plugin.Manifest, error)
	MissingFiles(dir string, names ...string) []string
	Exists(path string) bool
	RemoveDirectory(ctx context.Context, path string)
}

// Recorder receives operation metrics.
type Recorder interface {
	ObserveOperation(operation, result string, elapsed time.Duration)
	RecordCompensation(action string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, string, time.Duration) {}
func (nopRecorder) RecordCompensation(string)                      {}

// Manager runs plugin lifecycle operations.
type Manager struct {
	set     plugin.Set
	fs      Materializer
	logger  *slog.Logger
	metrics Recorder
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a Manager for the descriptor set. The set is copied.
func New(set plugin.Set, fs Materializer, opts ...Option) *Manager {
	m := &Manager{
		set:     set.Clone(),
		fs:      fs,
		logger:  slog.Default(),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Set returns a copy of the managed descriptor set.
func (m *Manager) Set() plugin.Set {
	return m.set.Clone()
}

// run carries the per-call state shared by every operation.
type run struct {
	m        *Manager
	op       string
	opID     string
	userID   string
	pluginID string
	session  store.Session
	logger   *slog.Logger
	span     trace.Span
	start    time.Time
}

func (m *Manager) begin(ctx context.Context, op, userID string, s store.Session) (context.Context, *run) {
	opID := ulid.Make().String()
	pluginID := plugin.PluginID(userID, m.set.Plugin.Slug)
	ctx, span := tracer.Start(ctx, "lifecycle."+op,
		trace.WithAttributes(
			attribute.String("lifecycle.op_id", opID),
			attribute.String("lifecycle.user_id", userID),
			attribute.String("lifecycle.plugin_id", pluginID),
		))
	return ctx, &run{
		m:        m,
		op:       op,
		opID:     opID,
		userID:   userID,
		pluginID: pluginID,
		session:  s,
		logger: m.logger.With(
			"operation", op,
			"op_id", opID,
			"user_id", userID,
			"plugin_id", pluginID),
		span:  span,
		start: time.Now(),
	}
}

// end records the outcome of the operation and closes its span.
func (r *run) end(err *Error) {
	defer r.span.End()

	result := "success"
	if err != nil {
		result = string(err.Kind)
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
		r.span.SetAttributes(attribute.String("lifecycle.failed_step", string(err.Step)))
	}
	r.m.metrics.ObserveOperation(r.op, result, time.Since(r.start))
}

// fail compensates a failed step and returns the classified error.
// Compensation runs even when ctx has been cancelled.
func (r *run) fail(ctx context.Context, st step, dir string, err error) *Error {
	lerr := classify(st, r.pluginID, err)
	c := compensationFor(st, err)
	ctx = context.WithoutCancel(ctx)

	if c.rollback {
		r.rollback(ctx)
	}
	if c.removeDir && dir != "" {
		r.m.fs.RemoveDirectory(ctx, dir)
		r.m.metrics.RecordCompensation("remove_directory")
	}

	errutil.LogErrorContext(ctx, r.logger, r.op+" failed", lerr.Err)
	return lerr
}

// rollback rolls back the session; failures are logged, never returned.
func (r *run) rollback(ctx context.Context) {
	r.m.metrics.RecordCompensation("rollback")
	if err := r.session.Rollback(ctx); err != nil {
		errutil.LogErrorContext(ctx, r.logger, "rollback failed", err)
	}
}

// verifyManifest checks the files a completed copy must have produced.
func (r *run) verifyManifest(dir string) error {
	if missing := r.m.fs.MissingFiles(dir, "package.json", plugin.ManifestFile); len(missing) > 0 {
		return oops.With("dir", dir).With("missing", missing).Errorf("plugin files missing after copy: %v", missing)
	}
	manifest, err := r.m.fs.ReadManifest(dir)
	if err != nil {
		return err
	}
	return manifest.VerifyFor(r.userID, len(r.m.set.Modules))
}

// Install materializes the plugin for userID and inserts its records.
func (m *Manager) Install(ctx context.Context, userID string, s store.Session) (res InstallResult) {
	ctx, r := m.begin(ctx, OpInstall, userID, s)
	res = InstallResult{OpID: r.opID, PluginSlug: m.set.Plugin.Slug}

	var failure *Error
	defer func() { r.end(failure) }()
	abort := func(st step, dir string, err error) InstallResult {
		failure = r.fail(ctx, st, dir, err)
		res.Error = failure.Error()
		res.ErrorKind = failure.Kind
		return res
	}

	if err := plugin.ValidateUserID(userID); err != nil {
		return abort(stepValidateUser, "", err)
	}

	existing, err := s.FindPlugin(ctx, userID, m.set.Plugin.Slug)
	switch {
	case err == nil:
		res.PluginID = existing.ID
		return abort(stepCheck, "", &Error{
			Kind:     KindConflict,
			Step:     stepCheck,
			PluginID: existing.ID,
			Err: oops.Code(CodeConflict).
				With("plugin_id", existing.ID).
				Errorf("plugin %s is already installed for user %s", m.set.Plugin.Slug, userID),
		})
	case KindOf(err) != KindNotFound:
		return abort(stepCheck, "", err)
	}

	dir, err := m.fs.CreateUserDirectory(ctx, userID)
	if err != nil {
		return abort(stepCreateDir, "", err)
	}

	if _, err := m.fs.CopyPluginFiles(ctx, userID, dir, false); err != nil {
		return abort(stepCopy, dir, err)
	}

	inserted, err := s.InsertPluginAndModules(ctx, userID, m.set, m.now())
	if err != nil {
		if KindOf(err) == KindConflict {
			res.PluginID = r.pluginID
		}
		return abort(stepInsert, dir, err)
	}

	if err := r.verifyManifest(dir); err != nil {
		return abort(stepValidateManifest, dir, err)
	}

	if err := s.Commit(ctx); err != nil {
		return abort(stepCommit, dir, err)
	}

	r.logger.InfoContext(ctx, "plugin installed", "dir", dir, "modules", len(inserted.ModuleIDs))
	res.Success = true
	res.PluginID = inserted.PluginID
	res.ModulesCreated = inserted.ModuleIDs
	res.PluginDirectory = dir
	return res
}

// Update re-materializes the files of an installed plugin and refreshes its
// record. The directory is left in place on failure.
func (m *Manager) Update(ctx context.Context, userID string, s store.Session) (res UpdateResult) {
	ctx, r := m.begin(ctx, OpUpdate, userID, s)
	res = UpdateResult{OpID: r.opID}

	var failure *Error
	defer func() { r.end(failure) }()
	abort := func(st step, err error) UpdateResult {
		failure = r.fail(ctx, st, "", err)
		res.Error = failure.Error()
		res.ErrorKind = failure.Kind
		return res
	}

	if err := plugin.ValidateUserID(userID); err != nil {
		return abort(stepValidateUser, err)
	}

	existing, err := s.FindPlugin(ctx, userID, m.set.Plugin.Slug)
	if err != nil {
		if KindOf(err) == KindNotFound {
			err = oops.Code(CodeNotFound).Wrapf(err, "plugin %s is not installed for user %s", m.set.Plugin.Slug, userID)
		}
		return abort(stepCheck, err)
	}
	res.PluginID = existing.ID

	dir, err := m.fs.CreateUserDirectory(ctx, userID)
	if err != nil {
		return abort(stepCreateDir, err)
	}
	res.PluginDirectory = dir

	copied, err := m.fs.CopyPluginFiles(ctx, userID, dir, true)
	if err != nil {
		return abort(stepUpdateCopy, err)
	}

	if err := s.TouchPlugin(ctx, userID, existing.ID, m.set, m.now()); err != nil {
		return abort(stepTouch, err)
	}

	if err := r.verifyManifest(dir); err != nil {
		return abort(stepUpdateValidate, err)
	}

	if err := s.Commit(ctx); err != nil {
		return abort(stepUpdateCommit, err)
	}

	r.logger.InfoContext(ctx, "plugin updated", "dir", dir, "files", len(copied.Copied))
	res.Success = true
	res.CopiedFiles = copied.Copied
	return res
}

// Delete removes the records and the directory of userID's plugin.
func (m *Manager) Delete(ctx context.Context, userID string, s store.Session) (res DeleteResult) {
	ctx, r := m.begin(ctx, OpDelete, userID, s)
	res = DeleteResult{OpID: r.opID}

	var failure *Error
	defer func() { r.end(failure) }()
	abort := func(st step, err error) DeleteResult {
		failure = r.fail(ctx, st, "", err)
		res.Error = failure.Error()
		res.ErrorKind = failure.Kind
		return res
	}

	if err := plugin.ValidateUserID(userID); err != nil {
		return abort(stepValidateUser, err)
	}

	existing, err := s.FindPlugin(ctx, userID, m.set.Plugin.Slug)
	if err != nil {
		if KindOf(err) == KindNotFound {
			err = oops.Code(CodeNotFound).Wrapf(err, "plugin %s is not installed for user %s", m.set.Plugin.Slug, userID)
		}
		return abort(stepCheck, err)
	}
	res.PluginID = existing.ID

	deleted, err := s.DeletePluginAndModules(ctx, userID, existing.ID)
	if err != nil {
		return abort(stepDeleteRows, err)
	}

	dir := m.fs.PluginDir(userID)
	m.fs.RemoveDirectory(ctx, dir)

	if err := s.Commit(ctx); err != nil {
		return abort(stepDeleteCommit, err)
	}

	r.logger.InfoContext(ctx, "plugin deleted", "dir", dir, "modules", deleted)
	res.Success = true
	res.DeletedModules = deleted
	return res
}

// Status inspects userID's installation without modifying it. The session
// is always rolled back. Failures are reported as StatusError.
func (m *Manager) Status(ctx context.Context, userID string, s store.Session) (res StatusResult) {
	ctx, r := m.begin(ctx, OpStatus, userID, s)
	res = StatusResult{OpID: r.opID, Status: StatusUnknown}

	var failure *Error
	defer func() {
		if rbErr := s.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			errutil.LogErrorContext(ctx, r.logger, "rollback failed", rbErr)
		}
		r.end(failure)
	}()
	report := func(st step, err error) StatusResult {
		failure = classify(st, r.pluginID, err)
		errutil.LogErrorContext(ctx, r.logger, "status check failed", failure.Err)
		res.Status = StatusError
		res.Error = failure.Error()
		return res
	}

	if err := plugin.ValidateUserID(userID); err != nil {
		return report(stepValidateUser, err)
	}

	existing, err := s.FindPlugin(ctx, userID, m.set.Plugin.Slug)
	if err != nil {
		if KindOf(err) == KindNotFound {
			res.Status = StatusNotInstalled
			return res
		}
		return report(stepCheck, err)
	}
	res.Exists = true
	res.PluginID = existing.ID
	res.PluginInfo = existing

	dir := m.fs.PluginDir(userID)
	res.PluginDirectory = dir
	res.FilesExist = m.fs.Exists(dir)

	modules, err := store.CountModules(ctx, s, userID, existing.ID, len(m.set.Modules))
	if err != nil {
		return report(stepCheck, err)
	}
	res.ModulesStatus = &modules
	res.Status = classifyStatus(res.FilesExist, modules)

	r.logger.DebugContext(ctx, "plugin status", "status", res.Status, "files_exist", res.FilesExist,
		"modules_expected", modules.Expected, "modules_actual", modules.Actual)
	return res
}
