// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package views

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/backyardbot/backyardbot/internal/plugins/sprinkler"
	"github.com/backyardbot/backyardbot/internal/topics"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// Sprinkler shows which zones are being watered.
type Sprinkler struct {
	base

	mu    sync.Mutex
	state string
}

func newSprinkler(out *printer, backend Backend, logger *slog.Logger) *Sprinkler {
	return &Sprinkler{base: newBase(sprinkler.Name, out, backend, logger)}
}

// ReceiveData implements router.Plugin.
func (v *Sprinkler) ReceiveData(_ context.Context, payload json.RawMessage) {
	cmd, ok := v.command(payload)
	if !ok {
		return
	}
	if cmd.Command != sprinkler.CommandState {
		v.unknown(cmd)
		return
	}
	state, err := wire.DecodeInto[string](cmd.Payload)
	if err != nil {
		v.rejected(cmd, err)
		return
	}

	v.mu.Lock()
	v.state = state
	v.mu.Unlock()

	v.out.printf("%s: %s", v.name, state)
}

// State returns the last received watering state.
func (v *Sprinkler) State() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// StartWatering waters zones[i] for durations[i] seconds.
func (v *Sprinkler) StartWatering(ctx context.Context, zones, durations []int) error {
	return v.send(ctx, sprinkler.CommandStart, topics.StartWateringPayload{Zones: zones, Durations: durations})
}

// StopWatering stops zones.
func (v *Sprinkler) StopWatering(ctx context.Context, zones ...int) error {
	return v.send(ctx, sprinkler.CommandStop, sprinkler.StopPayload{Zones: zones})
}
