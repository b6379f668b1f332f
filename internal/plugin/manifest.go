// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package plugin discovers backend plugins, reads their manifests and
// instantiates the compiled-in implementations.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest file name inside a plugin directory.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string                       `yaml:"name" json:"name"`
	Version      string                       `yaml:"version" json:"version"`
	Enabled      *bool                        `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Settings     map[string]any               `yaml:"settings,omitempty" json:"settings,omitempty"`
	Localization map[string]map[string]string `yaml:"localization,omitempty" json:"localization,omitempty"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with lowercase letter,
// followed by lowercase letters, digits, or hyphens.
// Cannot end with a hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, oops.Code(CodeManifestEmpty).Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, oops.Code(CodeInvalidManifest).Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return oops.Code(CodeInvalidManifest).With("name", m.Name).
			Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return oops.Code(CodeInvalidManifest).With("name", m.Name).
			Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return oops.Code(CodeInvalidManifest).With("name", m.Name).Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return oops.Code(CodeInvalidManifest).With("name", m.Name).With("version", m.Version).
			Wrapf(err, "version must be semver")
	}

	return nil
}

// IsEnabled reports whether the manifest asks for the plugin to be loaded.
// Plugins are enabled unless they say otherwise.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// PickLocalization builds the text table for a plugin from the global and
// the plugin's own localization, walking languages from lowest to highest
// priority. The plugin overrides the global table within one language.
// With no languages English is used.
func PickLocalization(languages []string, global, plugin map[string]map[string]string) map[string]string {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	out := make(map[string]string)
	for i := len(languages) - 1; i >= 0; i-- {
		lang := languages[i]
		for k, v := range global[lang] {
			out[k] = v
		}
		for k, v := range plugin[lang] {
			out[k] = v
		}
	}
	return out
}
