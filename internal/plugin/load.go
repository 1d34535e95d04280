// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package plugin

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseSet parses and validates a YAML descriptor set with top-level keys
// plugin_data and module_data.
func ParseSet(data []byte) (Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Set{}, fmt.Errorf("descriptor data is empty")
	}

	var s Set
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return Set{}, fmt.Errorf("invalid YAML: %w", err)
	}
	s.normalize()

	if err := s.Validate(); err != nil {
		return Set{}, err
	}
	return s, nil
}

// LoadSet reads a descriptor set from a YAML file.
func LoadSet(path string) (Set, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return Set{}, fmt.Errorf("read descriptor file: %w", err)
	}
	s, err := ParseSet(data)
	if err != nil {
		return Set{}, fmt.Errorf("descriptor file %s: %w", path, err)
	}
	return s, nil
}
