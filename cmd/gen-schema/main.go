// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

// Command gen-schema writes the JSON Schema of plugin_metadata.json.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/networkeyes/lifecycle/internal/plugin"
)

func main() {
	out := flag.String("out", filepath.Join("schemas", "plugin_metadata.schema.json"), "output path")
	flag.Parse()

	if err := generate(*out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s\n", *out)
}

func generate(outPath string) error {
	schema, err := plugin.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generate schema: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(outPath, schema, 0o600); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}
