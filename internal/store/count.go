// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package store

import (
	"context"

	"github.com/samber/oops"
)

// ModuleCount compares the module rows of a plugin with the number of module
// descriptors the plugin declares.
type ModuleCount struct {
	Expected int            `json:"expected"`
	Actual   int            `json:"actual"`
	Enabled  int            `json:"enabled"`
	Modules  []ModuleRecord `json:"modules"`
}

// AllLoaded reports whether exactly the expected number of rows exist.
func (c ModuleCount) AllLoaded() bool {
	return c.Actual == c.Expected
}

// AllEnabled reports whether every module row is enabled.
func (c ModuleCount) AllEnabled() bool {
	return c.Enabled == c.Actual
}

// CountModules reads the module rows of pluginID within s.
func CountModules(ctx context.Context, s Session, userID, pluginID string, expected int) (ModuleCount, error) {
	modules, err := s.ListModules(ctx, userID, pluginID)
	if err != nil {
		return ModuleCount{}, oops.With("plugin_id", pluginID).Wrapf(err, "count modules")
	}

	count := ModuleCount{
		Expected: expected,
		Actual:   len(modules),
		Modules:  modules,
	}
	for _, m := range modules {
		if m.Enabled {
			count.Enabled++
		}
	}
	return count, nil
}
