// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package debug is the backend side of the debug plugin. It logs what it
// receives; redirects are handled by the server.
package debug

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
)

// Name is the plugin name.
const Name = "debug"

// Plugin logs every payload.
type Plugin struct {
	logger   *slog.Logger
	received atomic.Int64
}

// New creates the plugin.
func New(logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{logger: logger}
}

// Name implements router.Plugin.
func (p *Plugin) Name() string { return Name }

// ReceiveData implements router.Plugin.
func (p *Plugin) ReceiveData(_ context.Context, payload json.RawMessage) {
	p.received.Add(1)
	p.logger.Info("debug plugin received data", "payload", string(payload))
}

// Received counts payloads seen so far.
func (p *Plugin) Received() int64 { return p.received.Load() }
