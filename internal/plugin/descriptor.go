// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Package plugin describes the managed frontend plugin: its descriptor, its
// modules, the ids derived from them, and the on-disk manifest written at
// install time.
package plugin

import (
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Descriptor is the static description of the plugin.
//
// UpdateCheckURL, LastUpdateCheck, UpdateAvailable and LatestVersion are
// reserved for an update checker; they are persisted but never computed here.
type Descriptor struct {
	Name             string     `json:"name" yaml:"name"`
	Description      string     `json:"description" yaml:"description"`
	Version          string     `json:"version" yaml:"version"`
	Type             string     `json:"type" yaml:"type"`
	Icon             string     `json:"icon" yaml:"icon"`
	Category         string     `json:"category" yaml:"category"`
	Official         bool       `json:"official" yaml:"official"`
	Author           string     `json:"author" yaml:"author"`
	Compatibility    string     `json:"compatibility" yaml:"compatibility"`
	Scope            string     `json:"scope" yaml:"scope"`
	BundleMethod     string     `json:"bundle_method" yaml:"bundle_method"`
	BundleLocation   string     `json:"bundle_location" yaml:"bundle_location"`
	IsLocal          bool       `json:"is_local" yaml:"is_local"`
	LongDescription  string     `json:"long_description" yaml:"long_description"`
	Slug             string     `json:"plugin_slug" yaml:"plugin_slug"`
	SourceType       string     `json:"source_type" yaml:"source_type"`
	SourceURL        string     `json:"source_url" yaml:"source_url"`
	UpdateCheckURL   string     `json:"update_check_url" yaml:"update_check_url"`
	LastUpdateCheck  *time.Time `json:"last_update_check,omitempty" yaml:"last_update_check,omitempty"`
	UpdateAvailable  bool       `json:"update_available" yaml:"update_available"`
	LatestVersion    *string    `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
	InstallationType string     `json:"installation_type" yaml:"installation_type"`
	Permissions      []string   `json:"permissions" yaml:"permissions"`
}

// ConfigField describes one user-configurable module setting.
type ConfigField struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Default     any    `json:"default" yaml:"default"`
}

// RequiredService is a host capability a module needs.
type RequiredService struct {
	Methods []string `json:"methods" yaml:"methods"`
	Version string   `json:"version" yaml:"version"`
}

// Layout holds the grid constraints of a module.
type Layout struct {
	MinWidth      int `json:"minWidth" yaml:"minWidth"`
	MinHeight     int `json:"minHeight" yaml:"minHeight"`
	DefaultWidth  int `json:"defaultWidth" yaml:"defaultWidth"`
	DefaultHeight int `json:"defaultHeight" yaml:"defaultHeight"`
}

// ModuleDescriptor is the static description of one module the plugin exposes.
type ModuleDescriptor struct {
	Name             string                     `json:"name" yaml:"name"`
	DisplayName      string                     `json:"display_name" yaml:"display_name"`
	Description      string                     `json:"description" yaml:"description"`
	Icon             string                     `json:"icon" yaml:"icon"`
	Category         string                     `json:"category" yaml:"category"`
	Priority         int                        `json:"priority" yaml:"priority"`
	Props            map[string]any             `json:"props" yaml:"props"`
	ConfigFields     map[string]ConfigField     `json:"config_fields" yaml:"config_fields"`
	Messages         map[string]any             `json:"messages" yaml:"messages"`
	RequiredServices map[string]RequiredService `json:"required_services" yaml:"required_services"`
	Dependencies     []string                   `json:"dependencies" yaml:"dependencies"`
	Layout           Layout                     `json:"layout" yaml:"layout"`
	Tags             []string                   `json:"tags" yaml:"tags"`
}

// Set is the immutable descriptor configuration handed to the lifecycle
// manager: one plugin and its modules.
type Set struct {
	Plugin  Descriptor         `json:"plugin_data" yaml:"plugin_data"`
	Modules []ModuleDescriptor `json:"module_data" yaml:"module_data"`
}

// maxSlugLength bounds the slug, which becomes part of every row id and path.
const maxSlugLength = 64

var (
	slugPattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	moduleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// Clone returns a deep copy so callers cannot mutate a shared Set.
func (s Set) Clone() Set {
	out := Set{Plugin: s.Plugin}
	out.Plugin.Permissions = append([]string(nil), s.Plugin.Permissions...)
	if s.Plugin.LastUpdateCheck != nil {
		t := *s.Plugin.LastUpdateCheck
		out.Plugin.LastUpdateCheck = &t
	}
	if s.Plugin.LatestVersion != nil {
		v := *s.Plugin.LatestVersion
		out.Plugin.LatestVersion = &v
	}

	out.Modules = make([]ModuleDescriptor, len(s.Modules))
	for i, m := range s.Modules {
		c := m
		c.Props = cloneMap(m.Props)
		c.Messages = cloneMap(m.Messages)
		c.ConfigFields = make(map[string]ConfigField, len(m.ConfigFields))
		for k, v := range m.ConfigFields {
			c.ConfigFields[k] = v
		}
		c.RequiredServices = make(map[string]RequiredService, len(m.RequiredServices))
		for k, v := range m.RequiredServices {
			v.Methods = append([]string(nil), v.Methods...)
			c.RequiredServices[k] = v
		}
		c.Dependencies = append(make([]string, 0, len(m.Dependencies)), m.Dependencies...)
		c.Tags = append(make([]string, 0, len(m.Tags)), m.Tags...)
		out.Modules[i] = c
	}
	return out
}

// normalize replaces nil collections with empty ones so that they encode as
// {} and [] rather than null.
func (s *Set) normalize() {
	if s.Plugin.Permissions == nil {
		s.Plugin.Permissions = []string{}
	}
	for i := range s.Modules {
		m := &s.Modules[i]
		if m.Props == nil {
			m.Props = map[string]any{}
		}
		if m.Messages == nil {
			m.Messages = map[string]any{}
		}
		if m.ConfigFields == nil {
			m.ConfigFields = map[string]ConfigField{}
		}
		if m.RequiredServices == nil {
			m.RequiredServices = map[string]RequiredService{}
		}
		if m.Dependencies == nil {
			m.Dependencies = []string{}
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
	}
}

// Validate checks descriptor constraints.
func (s Set) Validate() error {
	p := s.Plugin
	if p.Name == "" {
		return fmt.Errorf("plugin name is required")
	}
	if p.Slug == "" || !slugPattern.MatchString(p.Slug) {
		return fmt.Errorf("plugin_slug %q must start with a letter and contain only letters, digits, '_' or '-'", p.Slug)
	}
	if len(p.Slug) > maxSlugLength {
		return fmt.Errorf("plugin_slug must be %d characters or less, got %d", maxSlugLength, len(p.Slug))
	}
	if _, err := semver.StrictNewVersion(p.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", p.Version, err)
	}
	if _, err := semver.StrictNewVersion(p.Compatibility); err != nil {
		return fmt.Errorf("compatibility %q is not a semantic version: %w", p.Compatibility, err)
	}
	if p.LatestVersion != nil {
		if _, err := semver.NewVersion(*p.LatestVersion); err != nil {
			return fmt.Errorf("latest_version %q is not a semantic version: %w", *p.LatestVersion, err)
		}
	}
	if dup := firstDuplicate(p.Permissions); dup != "" {
		return fmt.Errorf("duplicate permission %q", dup)
	}

	if len(s.Modules) == 0 {
		return fmt.Errorf("at least one module is required")
	}
	seen := make(map[string]struct{}, len(s.Modules))
	for _, m := range s.Modules {
		if err := m.validate(); err != nil {
			return fmt.Errorf("module %q: %w", m.Name, err)
		}
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("duplicate module name %q", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	return nil
}

func (m ModuleDescriptor) validate() error {
	if !moduleNamePattern.MatchString(m.Name) {
		return fmt.Errorf("name must start with a letter and contain only letters, digits or '_'")
	}
	if m.Priority < 0 {
		return fmt.Errorf("priority must not be negative, got %d", m.Priority)
	}
	l := m.Layout
	if l.MinWidth < 0 || l.MinHeight < 0 {
		return fmt.Errorf("layout minimums must not be negative")
	}
	if l.MinWidth > l.DefaultWidth || l.MinHeight > l.DefaultHeight {
		return fmt.Errorf("layout minimum %dx%d exceeds default %dx%d",
			l.MinWidth, l.MinHeight, l.DefaultWidth, l.DefaultHeight)
	}
	for name, svc := range m.RequiredServices {
		if _, err := semver.StrictNewVersion(svc.Version); err != nil {
			return fmt.Errorf("required service %q version %q is not a semantic version", name, svc.Version)
		}
		if len(svc.Methods) == 0 {
			return fmt.Errorf("required service %q lists no methods", name)
		}
	}
	if dup := firstDuplicate(m.Tags); dup != "" {
		return fmt.Errorf("duplicate tag %q", dup)
	}
	return nil
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}

func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
