// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package plugin

import (
	"encoding/json"
	"fmt"
	"time"
)

// ManifestFile is the name of the manifest written into every user plugin
// directory.
const ManifestFile = "plugin_metadata.json"

// Manifest is the snapshot written to plugin_metadata.json at install or
// update time. It is read back only to validate the installation; the
// database remains the source of truth.
type Manifest struct {
	PluginData       Descriptor         `json:"plugin_data"`
	ModuleData       []ModuleDescriptor `json:"module_data"`
	InstalledForUser string             `json:"installed_for_user" jsonschema:"minLength=1"`
	InstalledAt      string             `json:"installed_at" jsonschema:"format=date-time"`
}

// NewManifest builds the manifest for a user from a descriptor set.
func NewManifest(set Set, userID string, installedAt time.Time) Manifest {
	s := set.Clone()
	s.normalize()
	return Manifest{
		PluginData:       s.Plugin,
		ModuleData:       s.Modules,
		InstalledForUser: userID,
		InstalledAt:      installedAt.Format(time.RFC3339Nano),
	}
}

// Marshal encodes the manifest as indented UTF-8 JSON.
func (m Manifest) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseManifest validates data against the manifest schema and decodes it.
func ParseManifest(data []byte) (*Manifest, error) {
	if err := ValidateManifest(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest JSON: %w", err)
	}
	if _, err := time.Parse(time.RFC3339Nano, m.InstalledAt); err != nil {
		return nil, fmt.Errorf("installed_at %q is not an RFC 3339 timestamp: %w", m.InstalledAt, err)
	}
	return &m, nil
}

// VerifyFor checks that the manifest was written for userID and carries the
// expected number of modules.
func (m *Manifest) VerifyFor(userID string, expectedModules int) error {
	if m.InstalledForUser != userID {
		return fmt.Errorf("manifest was written for user %q, not %q", m.InstalledForUser, userID)
	}
	if len(m.ModuleData) != expectedModules {
		return fmt.Errorf("manifest lists %d modules, expected %d", len(m.ModuleData), expectedModules)
	}
	return nil
}
