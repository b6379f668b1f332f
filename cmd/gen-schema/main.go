// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Command gen-schema writes the plugin manifest JSON Schema. With --check it
// fails instead when the file on disk is stale.
package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/backyardbot/backyardbot/internal/plugin"
)

func main() {
	out := pflag.StringP("out", "o", filepath.Join("schemas", "plugin.schema.json"), "schema output path")
	check := pflag.Bool("check", false, "exit non-zero if the schema file is out of date")
	pflag.Parse()

	if err := run(*out, *check); err != nil {
		fmt.Fprintf(os.Stderr, "gen-schema: %v\n", err)
		os.Exit(1)
	}
}

func run(out string, check bool) error {
	schema, err := plugin.GenerateSchema()
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	if check {
		current, err := os.ReadFile(out) //nolint:gosec // path comes from the command line
		if err != nil {
			return fmt.Errorf("read %s: %w", out, err)
		}
		if !bytes.Equal(current, schema) {
			return fmt.Errorf("%s is stale; run gen-schema", out)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(out, schema, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("wrote %s\n", out)
	return nil
}
