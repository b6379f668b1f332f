// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package timetable is the backend plugin that edits the watering
// timetable.
package timetable

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/backyardbot/backyardbot/internal/plugins"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/topics"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// Name is the plugin name.
const Name = "timetable"

// Commands understood and sent by the plugin.
const (
	CommandAddEntries = "add_entries"
	CommandRemove     = "remove_entry"
	CommandContents   = "timetable_contents"
)

// Plugin stores timetable changes and tells everyone about them.
type Plugin struct {
	sender   router.Sender
	store    store.TimetableStore
	bus      *topics.Bus
	logger   *slog.Logger
	commands plugins.Commands
}

// New creates the plugin.
func New(sender router.Sender, st store.TimetableStore, bus *topics.Bus, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Plugin{sender: sender, store: st, bus: bus, logger: logger}
	p.commands = plugins.Commands{
		CommandAddEntries: p.addEntries,
		CommandRemove:     p.removeEntry,
	}
	return p
}

// Name implements router.Plugin.
func (p *Plugin) Name() string { return Name }

// ReceiveData implements router.Plugin.
func (p *Plugin) ReceiveData(ctx context.Context, payload json.RawMessage) {
	p.commands.Handle(ctx, p.logger, payload)
}

func (p *Plugin) addEntries(ctx context.Context, raw json.RawMessage) error {
	entries, err := wire.DecodeInto[[]store.Entry](raw)
	if err != nil {
		return err
	}
	added, err := p.store.Add(ctx, entries)
	if err != nil {
		return err
	}
	p.logger.Info("timetable entries added", "count", len(added))
	return p.changed(ctx)
}

func (p *Plugin) removeEntry(ctx context.Context, raw json.RawMessage) error {
	id, err := wire.DecodeInto[string](raw)
	if err != nil {
		return err
	}
	if err := p.store.Remove(ctx, id); err != nil {
		return err
	}
	p.logger.Info("timetable entry removed", "id", id)
	return p.changed(ctx)
}

func (p *Plugin) changed(ctx context.Context) error {
	p.bus.Publish(topics.Message{Topic: topics.TimetableUpdated})

	cmd, err := p.ClientState(ctx)
	if err != nil {
		return err
	}
	return p.sender.Send(ctx, cmd, p)
}

// ClientState returns the timetable_contents command with every entry.
func (p *Plugin) ClientState(ctx context.Context) (wire.Command, error) {
	entries, err := p.store.List(ctx)
	if err != nil {
		return wire.Command{}, err
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	store.SortEntries(entries)
	return wire.NewCommand(CommandContents, entries)
}
