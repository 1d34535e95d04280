// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/networkeyes/lifecycle/internal/config"
	"github.com/networkeyes/lifecycle/internal/lifecycle"
	"github.com/networkeyes/lifecycle/internal/logging"
	"github.com/networkeyes/lifecycle/internal/observability"
	"github.com/networkeyes/lifecycle/internal/plugin"
	"github.com/networkeyes/lifecycle/internal/pluginfs"
	"github.com/networkeyes/lifecycle/internal/store"
	"github.com/networkeyes/lifecycle/pkg/errutil"
)

// result is the outcome of a lifecycle operation.
type result interface {
	OK() bool
}

// operation describes one user-scoped lifecycle command.
type operation struct {
	name  string
	short string
	run   func(ctx context.Context, m *lifecycle.Manager, userID string, s store.Session) result
}

var operations = []operation{
	{
		name:  lifecycle.OpInstall,
		short: "Install the plugin for a user",
		run: func(ctx context.Context, m *lifecycle.Manager, userID string, s store.Session) result {
			return m.Install(ctx, userID, s)
		},
	},
	{
		name:  lifecycle.OpUpdate,
		short: "Replace the plugin files of an installed plugin",
		run: func(ctx context.Context, m *lifecycle.Manager, userID string, s store.Session) result {
			return m.Update(ctx, userID, s)
		},
	},
	{
		name:  lifecycle.OpDelete,
		short: "Remove the plugin records and files of a user",
		run: func(ctx context.Context, m *lifecycle.Manager, userID string, s store.Session) result {
			return m.Delete(ctx, userID, s)
		},
	},
	{
		name:  lifecycle.OpStatus,
		short: "Report the health of a user's installation",
		run: func(ctx context.Context, m *lifecycle.Manager, userID string, s store.Session) result {
			return m.Status(ctx, userID, s)
		},
	},
}

func newOperationCmd(op operation, deps *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   op.name + " <user_id>",
		Short: op.short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOperationWithDeps(cmd.Context(), cmd, op, args[0], deps)
		},
	}
}

// env is the wiring shared by every command run.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func setupEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, err := logging.Setup(logging.Options{
		Service: "networkeyes",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, err
	}
	registry, metrics := observability.NewRegistry()
	return &env{cfg: cfg, logger: logger, registry: registry, metrics: metrics}, nil
}

// flush writes the metrics textfile when one is configured.
func (e *env) flush() {
	if err := observability.WriteTextfile(e.cfg.MetricsFile, e.registry); err != nil {
		errutil.LogError(e.logger, "write metrics", err)
	}
}

func descriptorSet(cfg *config.Config) (plugin.Set, error) {
	if cfg.Plugins.Descriptor == "" {
		return plugin.NetworkEyes(), nil
	}
	set, err := plugin.LoadSet(cfg.Plugins.Descriptor)
	if err != nil {
		return plugin.Set{}, oops.Code("DESCRIPTOR_INVALID").With("path", cfg.Plugins.Descriptor).Wrap(err)
	}
	return set, nil
}

// runOperationWithDeps runs one lifecycle operation for userID and prints
// its result. An unsuccessful result is returned as an error.
func runOperationWithDeps(ctx context.Context, cmd *cobra.Command, op operation, userID string, deps *Deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	e, err := setupEnv(cmd)
	if err != nil {
		return err
	}
	defer e.flush()

	set, err := descriptorSet(e.cfg)
	if err != nil {
		return err
	}

	fs, err := pluginfs.New(e.cfg.Plugins.Dir, e.cfg.Plugins.Source, set,
		pluginfs.WithExclude(e.cfg.Plugins.Exclude...),
		pluginfs.WithLogger(e.logger))
	if err != nil {
		return err
	}

	db, err := deps.OpenDB(ctx, e.cfg.Dialect(), e.cfg.Database.URL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("driver", e.cfg.Database.Driver).Wrap(err)
	}
	defer db.Close()

	session, err := db.Begin(ctx)
	if err != nil {
		return oops.Code("DB_BEGIN_FAILED").Wrap(err)
	}

	manager := lifecycle.New(set, fs,
		lifecycle.WithLogger(e.logger),
		lifecycle.WithMetrics(e.metrics))

	res := op.run(ctx, manager, userID, session)

	jsonOutput, _ := cmd.Flags().GetBool("json")
	out, err := formatResult(res, jsonOutput)
	if err != nil {
		return err
	}
	cmd.Println(out)

	if !res.OK() {
		return oops.Code("OPERATION_FAILED").
			With("operation", op.name).
			With("user_id", userID).
			Errorf("%s failed for user %s", op.name, userID)
	}
	return nil
}
