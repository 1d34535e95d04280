// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package lifecycle

import "github.com/networkeyes/lifecycle/internal/store"

// InstallResult reports the outcome of Install. On conflict PluginID holds
// the id of the plugin already installed.
type InstallResult struct {
	OpID            string   `json:"op_id"`
	Success         bool     `json:"success"`
	PluginID        string   `json:"plugin_id,omitempty"`
	PluginSlug      string   `json:"plugin_slug,omitempty"`
	ModulesCreated  []string `json:"modules_created,omitempty"`
	PluginDirectory string   `json:"plugin_directory,omitempty"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       Kind     `json:"error_kind,omitempty"`
}

// UpdateResult reports the outcome of Update.
type UpdateResult struct {
	OpID            string   `json:"op_id"`
	Success         bool     `json:"success"`
	PluginID        string   `json:"plugin_id,omitempty"`
	CopiedFiles     []string `json:"copied_files,omitempty"`
	PluginDirectory string   `json:"plugin_directory,omitempty"`
	Error           string   `json:"error,omitempty"`
	ErrorKind       Kind     `json:"error_kind,omitempty"`
}

// DeleteResult reports the outcome of Delete.
type DeleteResult struct {
	OpID           string `json:"op_id"`
	Success        bool   `json:"success"`
	PluginID       string `json:"plugin_id,omitempty"`
	DeletedModules int64  `json:"deleted_modules"`
	Error          string `json:"error,omitempty"`
	ErrorKind      Kind   `json:"error_kind,omitempty"`
}

// Status is the health of a user's installation.
type Status string

// Installation statuses.
const (
	StatusNotInstalled     Status = "not_installed"
	StatusHealthy          Status = "healthy"
	StatusFilesMissing     Status = "files_missing"
	StatusModulesCorrupted Status = "modules_corrupted"
	StatusUnknown          Status = "unknown"
	StatusError            Status = "error"
)

// StatusResult reports the outcome of Status.
type StatusResult struct {
	OpID            string              `json:"op_id"`
	Exists          bool                `json:"exists"`
	Status          Status              `json:"status"`
	PluginID        string              `json:"plugin_id,omitempty"`
	PluginInfo      *store.PluginRecord `json:"plugin_info,omitempty"`
	FilesExist      bool                `json:"files_exist"`
	ModulesStatus   *store.ModuleCount  `json:"modules_status,omitempty"`
	PluginDirectory string              `json:"plugin_directory,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// OK reports whether the operation behind the result succeeded.
func (r InstallResult) OK() bool { return r.Success }

// OK reports whether the operation behind the result succeeded.
func (r UpdateResult) OK() bool { return r.Success }

// OK reports whether the operation behind the result succeeded.
func (r DeleteResult) OK() bool { return r.Success }

// OK reports whether the status check itself succeeded.
func (r StatusResult) OK() bool { return r.Status != StatusError }

// classifyStatus derives the status of an installed plugin from the
// directory and module probes. A missing directory takes precedence.
func classifyStatus(filesExist bool, modules store.ModuleCount) Status {
	switch {
	case filesExist && modules.AllLoaded():
		return StatusHealthy
	case !filesExist:
		return StatusFilesMissing
	case !modules.AllLoaded():
		return StatusModulesCorrupted
	default:
		return StatusUnknown
	}
}
