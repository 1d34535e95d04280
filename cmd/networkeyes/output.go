// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/samber/oops"

	"github.com/networkeyes/lifecycle/internal/lifecycle"
)

// formatResult renders res as indented JSON or a human-readable table.
func formatResult(res result, jsonOutput bool) (string, error) {
	if jsonOutput {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return "", oops.Code("OUTPUT_FAILED").Wrapf(err, "marshal result")
		}
		return string(data), nil
	}

	var rows [][2]string
	switch r := res.(type) {
	case lifecycle.InstallResult:
		rows = outcome(r.Success, r.Error, r.ErrorKind)
		rows = append(rows,
			[2]string{"plugin_id", r.PluginID},
			[2]string{"plugin_slug", r.PluginSlug},
			[2]string{"directory", r.PluginDirectory},
			[2]string{"modules", strings.Join(r.ModulesCreated, ", ")})
	case lifecycle.UpdateResult:
		rows = outcome(r.Success, r.Error, r.ErrorKind)
		rows = append(rows,
			[2]string{"plugin_id", r.PluginID},
			[2]string{"directory", r.PluginDirectory},
			[2]string{"copied", strings.Join(r.CopiedFiles, ", ")})
	case lifecycle.DeleteResult:
		rows = outcome(r.Success, r.Error, r.ErrorKind)
		rows = append(rows,
			[2]string{"plugin_id", r.PluginID},
			[2]string{"deleted_modules", fmt.Sprint(r.DeletedModules)})
	case lifecycle.StatusResult:
		rows = [][2]string{{"status", string(r.Status)}}
		if r.Error != "" {
			rows = append(rows, [2]string{"error", r.Error})
		}
		if r.Exists {
			rows = append(rows,
				[2]string{"plugin_id", r.PluginID},
				[2]string{"directory", r.PluginDirectory},
				[2]string{"files_exist", fmt.Sprint(r.FilesExist)})
		}
		if r.PluginInfo != nil {
			rows = append(rows,
				[2]string{"version", r.PluginInfo.Version},
				[2]string{"enabled", fmt.Sprint(r.PluginInfo.Enabled)})
		}
		if m := r.ModulesStatus; m != nil {
			rows = append(rows, [2]string{"modules", fmt.Sprintf("%d/%d loaded, %d enabled", m.Actual, m.Expected, m.Enabled)})
		}
	default:
		return "", oops.Code("OUTPUT_FAILED").Errorf("unsupported result %T", res)
	}
	rows = append(rows, [2]string{"op_id", opID(res)})

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", row[0], row[1])
	}
	_ = w.Flush()
	return strings.TrimRight(b.String(), "\n"), nil
}

func outcome(success bool, msg string, kind lifecycle.Kind) [][2]string {
	if success {
		return [][2]string{{"result", "success"}}
	}
	return [][2]string{{"result", "failed"}, {"error_kind", string(kind)}, {"error", msg}}
}

func opID(res result) string {
	switch r := res.(type) {
	case lifecycle.InstallResult:
		return r.OpID
	case lifecycle.UpdateResult:
		return r.OpID
	case lifecycle.DeleteResult:
		return r.OpID
	case lifecycle.StatusResult:
		return r.OpID
	}
	return ""
}
