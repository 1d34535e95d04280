// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package plugin

// NetworkEyes returns the compiled-in descriptor set for the NetworkEyes
// network monitoring plugin. Each call returns a fresh copy.
func NetworkEyes() Set {
	s := Set{
		Plugin: Descriptor{
			Name:             "BrainDriveNetwork",
			Description:      "Network status monitoring and connectivity checking for BrainDrive services",
			Version:          "1.0.6",
			Type:             "frontend",
			Icon:             "NetworkCheck",
			Category:         "monitoring",
			Official:         false,
			Author:           "DJJones66",
			Compatibility:    "1.0.0",
			Scope:            "BrainDriveNetwork",
			BundleMethod:     "webpack",
			BundleLocation:   "dist/remoteEntry.js",
			IsLocal:          false,
			LongDescription:  "Monitor network connectivity and status of BrainDrive services with real-time monitoring capabilities",
			Slug:             "BrainDriveNetwork",
			SourceType:       "github",
			SourceURL:        "https://github.com/DJJones66/NetworkEyes",
			UpdateCheckURL:   "https://api.github.com/repos/DJJones66/NetworkEyes/releases/latest",
			UpdateAvailable:  false,
			InstallationType: "remote",
			Permissions:      []string{"network.read", "storage.read", "storage.write"},
		},
		Modules: []ModuleDescriptor{
			{
				Name:        "ComponentNetworkStatus",
				DisplayName: "Network Status Monitor",
				Description: "Real-time network connectivity monitoring dashboard",
				Icon:        "NetworkCheck",
				Category:    "monitoring",
				Priority:    1,
				Props:       map[string]any{},
				ConfigFields: map[string]ConfigField{
					"refresh_interval": {
						Type:        "number",
						Description: "Auto-refresh interval in seconds",
						Default:     30,
					},
					"show_detailed_stats": {
						Type:        "boolean",
						Description: "Show detailed network statistics",
						Default:     true,
					},
				},
				Messages: map[string]any{},
				RequiredServices: map[string]RequiredService{
					"api":     {Methods: []string{"get"}, Version: "1.0.0"},
					"network": {Methods: []string{"check", "monitor"}, Version: "1.0.0"},
				},
				Dependencies: []string{},
				Layout: Layout{
					MinWidth:      3,
					MinHeight:     2,
					DefaultWidth:  4,
					DefaultHeight: 3,
				},
				Tags: []string{"monitoring", "network", "status", "connectivity", "eyes"},
			},
		},
	}
	s.normalize()
	return s
}
