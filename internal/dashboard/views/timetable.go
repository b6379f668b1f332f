// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package views

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/backyardbot/backyardbot/internal/plugins/timetable"
	"github.com/backyardbot/backyardbot/internal/schedule"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// Timetable shows the watering timetable.
type Timetable struct {
	base

	mu      sync.Mutex
	entries []store.Entry
}

func newTimetable(out *printer, backend Backend, logger *slog.Logger) *Timetable {
	return &Timetable{base: newBase(timetable.Name, out, backend, logger)}
}

// ReceiveData implements router.Plugin.
func (v *Timetable) ReceiveData(_ context.Context, payload json.RawMessage) {
	cmd, ok := v.command(payload)
	if !ok {
		return
	}
	if cmd.Command != timetable.CommandContents {
		v.unknown(cmd)
		return
	}
	entries, err := wire.DecodeInto[[]store.Entry](cmd.Payload)
	if err != nil {
		v.rejected(cmd, err)
		return
	}

	v.mu.Lock()
	v.entries = entries
	v.mu.Unlock()

	if len(entries) == 0 {
		v.out.printf("%s: no entries", v.name)
		return
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = schedule.Describe(e)
	}
	v.out.printf("%s: %d entries [%s]", v.name, len(entries), strings.Join(lines, "; "))
}

// Entries returns the last received timetable.
func (v *Timetable) Entries() []store.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]store.Entry(nil), v.entries...)
}

// AddEntries asks the backend to store entries.
func (v *Timetable) AddEntries(ctx context.Context, entries ...store.Entry) error {
	return v.send(ctx, timetable.CommandAddEntries, entries)
}

// RemoveEntry asks the backend to delete the entry with id.
func (v *Timetable) RemoveEntry(ctx context.Context, id string) error {
	return v.send(ctx, timetable.CommandRemove, id)
}
