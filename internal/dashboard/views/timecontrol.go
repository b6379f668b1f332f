// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package views

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/backyardbot/backyardbot/internal/plugins/timecontrol"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// TimeControl shows the automatic mode and the next watering.
type TimeControl struct {
	base

	mu    sync.Mutex
	state timecontrol.State
}

func newTimeControl(out *printer, backend Backend, logger *slog.Logger) *TimeControl {
	return &TimeControl{base: newBase(timecontrol.Name, out, backend, logger)}
}

// ReceiveData implements router.Plugin.
func (v *TimeControl) ReceiveData(_ context.Context, payload json.RawMessage) {
	cmd, ok := v.command(payload)
	if !ok {
		return
	}
	if cmd.Command != timecontrol.CommandState {
		v.unknown(cmd)
		return
	}
	state, err := wire.DecodeInto[timecontrol.State](cmd.Payload)
	if err != nil {
		v.rejected(cmd, err)
		return
	}

	v.mu.Lock()
	v.state = state
	v.mu.Unlock()

	auto := "off"
	if state.AutoState {
		auto = "on"
	}
	if state.NextTimeDay == "" {
		v.out.printf("%s: auto %s, nothing scheduled", v.name, auto)
		return
	}
	v.out.printf("%s: auto %s, next %s, %s", v.name, auto, state.NextTimeDay, state.NextZoneDuration)
}

// State returns the last received state.
func (v *TimeControl) State() timecontrol.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// ToggleAutoMode switches automatic watering on or off.
func (v *TimeControl) ToggleAutoMode(ctx context.Context, on bool) error {
	return v.send(ctx, timecontrol.CommandToggleAuto, on)
}

// SkipNextWatering skips the next scheduled watering.
func (v *TimeControl) SkipNextWatering(ctx context.Context) error {
	return v.send(ctx, timecontrol.CommandSkipNext, nil)
}
