// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package plugin

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Env is what a factory receives when its plugin is loaded.
type Env struct {
	Manifest     *Manifest
	Dir          string
	Localization map[string]string
	Logger       *slog.Logger
}

// Factory creates the implementation of a compiled-in plugin.
type Factory func(ctx context.Context, env Env) (router.Plugin, error)

// Builtin pairs a compiled-in plugin's default manifest with its factory.
// The default manifest is used when the plugins directory has none.
type Builtin struct {
	Manifest Manifest
	Factory  Factory
}

// Manager discovers and manages plugin lifecycle.
type Manager struct {
	pluginsDir   string
	patterns     []string
	languages    []string
	localization map[string]map[string]string
	logger       *slog.Logger

	builtins map[string]Builtin

	mu     sync.RWMutex
	loaded map[string]*Loaded
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithEnabled restricts loading to plugins whose name matches one of the
// glob patterns. Without patterns every plugin is eligible.
func WithEnabled(patterns ...string) ManagerOption {
	return func(m *Manager) {
		m.patterns = append(m.patterns, patterns...)
	}
}

// WithLocalization sets the language priorities, highest first, and the
// global localization table.
func WithLocalization(languages []string, global map[string]map[string]string) ManagerOption {
	return func(m *Manager) {
		m.languages = languages
		m.localization = global
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBuiltin registers a compiled-in plugin.
func WithBuiltin(b Builtin) ManagerOption {
	return func(m *Manager) {
		m.builtins[b.Manifest.Name] = b
	}
}

// NewManager creates a plugin manager.
func NewManager(pluginsDir string, opts ...ManagerOption) *Manager {
	m := &Manager{
		pluginsDir: pluginsDir,
		logger:     slog.Default(),
		builtins:   make(map[string]Builtin),
		loaded:     make(map[string]*Loaded),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscoveredPlugin contains a manifest and its directory. Dir is empty
// for built-in defaults.
type DiscoveredPlugin struct {
	Manifest *Manifest
	Dir      string
}

// Loaded describes a plugin that has been instantiated.
type Loaded struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dir          string            `json:"dir,omitempty"`
	Settings     map[string]any    `json:"settings,omitempty"`
	Localization map[string]string `json:"localization"`

	Plugin router.Plugin `json:"-"`
}

// Discover finds the enabled plugins: every valid manifest in the plugins
// directory plus built-in defaults for compiled-in plugins that have no
// manifest there. Invalid manifests are logged and skipped.
func (m *Manager) Discover(_ context.Context) ([]*DiscoveredPlugin, error) {
	enabled, err := m.compilePatterns()
	if err != nil {
		return nil, err
	}

	found, err := m.scan()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(found))
	for _, dp := range found {
		seen[dp.Manifest.Name] = true
	}
	for name, b := range m.builtins {
		if seen[name] {
			continue
		}
		manifest := b.Manifest
		found = append(found, &DiscoveredPlugin{Manifest: &manifest})
	}

	var plugins []*DiscoveredPlugin
	for _, dp := range found {
		if !dp.Manifest.IsEnabled() {
			m.logger.Info("plugin disabled by manifest", "plugin", dp.Manifest.Name)
			continue
		}
		if !matchAny(enabled, dp.Manifest.Name) {
			m.logger.Info("plugin not enabled", "plugin", dp.Manifest.Name)
			continue
		}
		plugins = append(plugins, dp)
	}

	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins, nil
}

func (m *Manager) scan() ([]*DiscoveredPlugin, error) {
	if m.pluginsDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code(CodeDirUnreadable).With("dir", m.pluginsDir).Wrapf(err, "read plugins directory")
	}

	var plugins []*DiscoveredPlugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginDir := filepath.Join(m.pluginsDir, entry.Name())
		manifestPath := filepath.Join(pluginDir, ManifestFile)

		data, err := os.ReadFile(manifestPath) //nolint:gosec // manifestPath is constructed from ReadDir entries
		if err != nil {
			m.logger.Warn("skipping plugin without manifest",
				"dir", entry.Name(),
				"error", err)
			continue
		}

		if err := ValidateSchema(data); err != nil {
			m.logger.Warn("skipping plugin with invalid manifest",
				"dir", entry.Name(),
				"error", FormatSchemaError(err))
			continue
		}

		manifest, err := ParseManifest(data)
		if err != nil {
			errutil.LogWarn(m.logger, "skipping plugin with invalid manifest", err, "dir", entry.Name())
			continue
		}

		plugins = append(plugins, &DiscoveredPlugin{
			Manifest: manifest,
			Dir:      pluginDir,
		})
	}
	return plugins, nil
}

func (m *Manager) compilePatterns() ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(m.patterns))
	for _, p := range m.patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.Code(CodeInvalidPattern).With("pattern", p).Wrap(err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchAny(globs []glob.Glob, name string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// LoadAll discovers the enabled plugins, instantiates them and registers
// them with reg. A plugin that fails to load is logged and skipped.
func (m *Manager) LoadAll(ctx context.Context, reg *router.Registry) error {
	discovered, err := m.Discover(ctx)
	if err != nil {
		return err
	}

	for _, dp := range discovered {
		loaded, err := m.load(ctx, dp)
		if err != nil {
			errutil.LogError(m.logger, "failed to load plugin", err, "plugin", dp.Manifest.Name)
			continue
		}
		reg.Register(loaded.Plugin)
	}
	return nil
}

func (m *Manager) load(ctx context.Context, dp *DiscoveredPlugin) (*Loaded, error) {
	name := dp.Manifest.Name
	b, ok := m.builtins[name]
	if !ok {
		return nil, oops.Code(CodeLoadFailed).With("plugin", name).Errorf("no implementation for plugin %q", name)
	}

	localization := PickLocalization(m.languages, m.localization, dp.Manifest.Localization)
	p, err := b.Factory(ctx, Env{
		Manifest:     dp.Manifest,
		Dir:          dp.Dir,
		Localization: localization,
		Logger:       m.logger.With("plugin", name),
	})
	if err != nil {
		return nil, oops.Code(CodeLoadFailed).With("plugin", name).Wrap(err)
	}
	if p == nil || p.Name() != name {
		return nil, oops.Code(CodeLoadFailed).With("plugin", name).Errorf("factory returned a plugin with another name")
	}

	loaded := &Loaded{
		Name:         name,
		Version:      dp.Manifest.Version,
		Dir:          dp.Dir,
		Settings:     dp.Manifest.Settings,
		Localization: localization,
		Plugin:       p,
	}

	m.mu.Lock()
	m.loaded[name] = loaded
	m.mu.Unlock()

	m.logger.Info("loaded plugin",
		"plugin", name,
		"version", dp.Manifest.Version,
		"builtin_manifest", dp.Dir == "")
	return loaded, nil
}

// ListPlugins returns names of all loaded plugins.
func (m *Manager) ListPlugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plugins returns the loaded plugins ordered by name.
func (m *Manager) Plugins() []*Loaded {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Loaded, 0, len(m.loaded))
	for _, l := range m.loaded {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
