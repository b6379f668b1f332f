// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package views

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"

	"github.com/backyardbot/backyardbot/internal/plugins/debug"
)

// Debug prints whatever it is sent and injects frames on behalf of other
// plugins.
type Debug struct {
	base
	received atomic.Int64
}

func newDebug(out *printer, backend Backend, logger *slog.Logger) *Debug {
	return &Debug{base: newBase(debug.Name, out, backend, logger)}
}

// ReceiveData implements router.Plugin.
func (v *Debug) ReceiveData(_ context.Context, payload json.RawMessage) {
	v.received.Add(1)
	v.out.printf("%s: %s", v.name, payload)
}

// Received counts the payloads seen.
func (v *Debug) Received() int64 { return v.received.Load() }

// Redirect asks the backend to deliver payload as if it came from or
// went to receivingPlugin, depending on destination.
func (v *Debug) Redirect(ctx context.Context, destination, receivingPlugin string, payload any) error {
	return v.backend.SendRedirect(ctx, destination, receivingPlugin, payload)
}
