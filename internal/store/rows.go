// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/networkeyes/lifecycle/internal/plugin"
)

// Values written to every freshly installed plugin row.
const (
	StatusActivated = "activated"
	emptyObjectJSON = "{}"
)

// PluginColumns lists the plugin table columns in PluginRow.Values order.
var PluginColumns = []string{
	"id", "name", "description", "version", "type", "enabled", "icon", "category", "status",
	"official", "author", "last_updated", "compatibility", "downloads", "scope",
	"bundle_method", "bundle_location", "is_local", "long_description",
	"config_fields", "messages", "dependencies", "created_at", "updated_at", "user_id",
	"plugin_slug", "source_type", "source_url", "update_check_url", "last_update_check",
	"update_available", "latest_version", "installation_type", "permissions",
}

// TouchColumns lists the plugin columns refreshed by an update, in
// PluginRow.TouchValues order.
var TouchColumns = []string{
	"name", "description", "version", "type", "icon", "category", "author",
	"compatibility", "scope", "bundle_method", "bundle_location", "long_description",
	"source_type", "source_url", "update_check_url", "installation_type", "permissions",
	"last_updated", "updated_at",
}

// ModuleColumns lists the module table columns in ModuleRow.Values order.
var ModuleColumns = []string{
	"id", "plugin_id", "name", "display_name", "description", "icon", "category",
	"enabled", "priority", "props", "config_fields", "messages", "required_services",
	"dependencies", "layout", "tags", "created_at", "updated_at", "user_id",
}

// PluginRow is a plugin table row ready to be bound as query arguments.
// JSON columns hold encoded text; Messages and Dependencies are always NULL
// on the plugin row.
type PluginRow struct {
	ID              string
	UserID          string
	Descriptor      plugin.Descriptor
	Status          string
	Enabled         bool
	Downloads       int
	ConfigFields    string
	PermissionsJSON string
	LastUpdated     time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ModuleRow is a module table row ready to be bound as query arguments.
type ModuleRow struct {
	ID               string
	PluginID         string
	UserID           string
	Module           plugin.ModuleDescriptor
	Enabled          bool
	Props            string
	ConfigFields     string
	Messages         string
	RequiredServices string
	Dependencies     string
	Layout           string
	Tags             string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPluginRow encodes the plugin descriptor of set for userID.
func NewPluginRow(userID string, set plugin.Set, now time.Time) (PluginRow, error) {
	d := set.Plugin
	perms, err := encodeJSON(d.Permissions)
	if err != nil {
		return PluginRow{}, oops.With("column", "permissions").Wrap(err)
	}
	return PluginRow{
		ID:              plugin.PluginID(userID, d.Slug),
		UserID:          userID,
		Descriptor:      d,
		Status:          StatusActivated,
		Enabled:         true,
		ConfigFields:    emptyObjectJSON,
		PermissionsJSON: perms,
		LastUpdated:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Values returns the row's arguments in PluginColumns order.
func (r PluginRow) Values() []any {
	d := r.Descriptor
	return []any{
		r.ID, d.Name, d.Description, d.Version, d.Type, r.Enabled, d.Icon, d.Category, r.Status,
		d.Official, d.Author, r.LastUpdated, d.Compatibility, r.Downloads, d.Scope,
		d.BundleMethod, d.BundleLocation, d.IsLocal, d.LongDescription,
		r.ConfigFields, nil, nil, r.CreatedAt, r.UpdatedAt, r.UserID,
		d.Slug, d.SourceType, d.SourceURL, d.UpdateCheckURL, d.LastUpdateCheck,
		d.UpdateAvailable, d.LatestVersion, d.InstallationType, r.PermissionsJSON,
	}
}

// TouchValues returns the row's arguments in TouchColumns order.
func (r PluginRow) TouchValues() []any {
	d := r.Descriptor
	return []any{
		d.Name, d.Description, d.Version, d.Type, d.Icon, d.Category, d.Author,
		d.Compatibility, d.Scope, d.BundleMethod, d.BundleLocation, d.LongDescription,
		d.SourceType, d.SourceURL, d.UpdateCheckURL, d.InstallationType, r.PermissionsJSON,
		r.LastUpdated, r.UpdatedAt,
	}
}

// NewModuleRows encodes one row per module descriptor of set for userID.
func NewModuleRows(userID string, set plugin.Set, now time.Time) ([]ModuleRow, error) {
	pluginID := plugin.PluginID(userID, set.Plugin.Slug)
	rows := make([]ModuleRow, 0, len(set.Modules))
	for _, m := range set.Modules {
		row := ModuleRow{
			ID:        plugin.ModuleID(userID, set.Plugin.Slug, m.Name),
			PluginID:  pluginID,
			UserID:    userID,
			Module:    m,
			Enabled:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		fields := []struct {
			column string
			dst    *string
			value  any
		}{
			{"props", &row.Props, m.Props},
			{"config_fields", &row.ConfigFields, m.ConfigFields},
			{"messages", &row.Messages, m.Messages},
			{"required_services", &row.RequiredServices, m.RequiredServices},
			{"dependencies", &row.Dependencies, m.Dependencies},
			{"layout", &row.Layout, m.Layout},
			{"tags", &row.Tags, m.Tags},
		}
		for _, f := range fields {
			encoded, err := encodeJSON(f.value)
			if err != nil {
				return nil, oops.With("module", m.Name).With("column", f.column).Wrap(err)
			}
			*f.dst = encoded
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Values returns the row's arguments in ModuleColumns order.
func (r ModuleRow) Values() []any {
	m := r.Module
	return []any{
		r.ID, r.PluginID, m.Name, m.DisplayName, m.Description, m.Icon, m.Category,
		r.Enabled, m.Priority, r.Props, r.ConfigFields, r.Messages, r.RequiredServices,
		r.Dependencies, r.Layout, r.Tags, r.CreatedAt, r.UpdatedAt, r.UserID,
	}
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Placeholder renders the n-th (1-based) bind parameter of a dialect.
type Placeholder func(n int) string

// Dollar renders PostgreSQL positional parameters.
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite positional parameters.
func Question(n int) string { return fmt.Sprintf("?%d", n) }

// InsertSQL builds an INSERT statement for columns.
func InsertSQL(table string, columns []string, ph Placeholder) string {
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = ph(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(params, ", "))
}

// UpdateByOwnerSQL builds an UPDATE statement setting columns on the row
// matching id and user_id. The id and user_id parameters follow the column
// parameters.
func UpdateByOwnerSQL(table string, columns []string, ph Placeholder) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = " + ph(i+1)
	}
	n := len(columns)
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s AND user_id = %s",
		table, strings.Join(sets, ", "), ph(n+1), ph(n+2))
}
