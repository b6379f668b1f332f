// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Plugin is a named endpoint that receives the payloads of envelopes
// addressed to it. ReceiveData gets the payload only, never the envelope.
type Plugin interface {
	Name() string
	ReceiveData(ctx context.Context, payload json.RawMessage)
}

// Registry maps plugin names to plugins. It never stores an empty name and
// never removes an entry. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	logger  *slog.Logger
}

// NewRegistry creates an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		plugins: make(map[string]Plugin),
		logger:  logger,
	}
}

// Register stores p under p.Name(). A plugin without a name is logged and
// skipped. Registering a taken name replaces the previous plugin with a
// warning.
func (r *Registry) Register(p Plugin) {
	if p == nil {
		r.logger.Error("plugin registration skipped: nil plugin")
		return
	}
	name := p.Name()
	if name == "" {
		r.logger.Error("plugin registration skipped: empty name", "type", fmt.Sprintf("%T", p))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.plugins[name]; ok {
		r.logger.Warn("plugin conflict: overwriting registered plugin", "plugin", name)
	}
	r.plugins[name] = p
}

// Lookup returns the plugin registered under name.
func (r *Registry) Lookup(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	return p, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}
