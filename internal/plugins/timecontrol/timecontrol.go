// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package timecontrol is the backend plugin that starts watering when
// timetable entries fall due.
package timecontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/backyardbot/backyardbot/internal/plugins"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/schedule"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/topics"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Name is the plugin name.
const Name = "timecontrol"

// Commands understood and sent by the plugin.
const (
	CommandToggleAuto = "toggle_auto_mode"
	CommandSkipNext   = "skip_next_watering"
	CommandState      = "plugin_state"
)

// DefaultTick is how often due tasks are checked for.
const DefaultTick = time.Second

// State is what clients are shown.
type State struct {
	AutoState        bool   `json:"auto_state"`
	NextTimeDay      string `json:"next_time_day"`
	NextZoneDuration string `json:"next_zone_duration"`
}

// Options configures the plugin.
type Options struct {
	Tick     time.Duration
	AutoMode bool
	Now      func() time.Time
	Logger   *slog.Logger
}

type task struct {
	entry store.Entry
	at    schedule.Time
	next  time.Time
}

// Plugin keeps the timetable entries ordered by their next occurrence.
type Plugin struct {
	sender   router.Sender
	store    store.TimetableStore
	bus      *topics.Bus
	logger   *slog.Logger
	tick     time.Duration
	now      func() time.Time
	commands plugins.Commands

	mu    sync.Mutex
	tasks []*task
	auto  bool
}

// New creates the plugin. Call Load before Run to read the timetable.
func New(sender router.Sender, st store.TimetableStore, bus *topics.Bus, opts Options) *Plugin {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Plugin{
		sender: sender,
		store:  st,
		bus:    bus,
		logger: opts.Logger,
		tick:   opts.Tick,
		now:    opts.Now,
		auto:   opts.AutoMode,
	}
	p.commands = plugins.Commands{
		CommandToggleAuto: p.toggleAuto,
		CommandSkipNext:   p.skipNext,
	}
	return p
}

// Name implements router.Plugin.
func (p *Plugin) Name() string { return Name }

// ReceiveData implements router.Plugin.
func (p *Plugin) ReceiveData(ctx context.Context, payload json.RawMessage) {
	p.commands.Handle(ctx, p.logger, payload)
}

// Load replaces the tasks with the current timetable.
func (p *Plugin) Load(ctx context.Context) error {
	entries, err := p.store.List(ctx)
	if err != nil {
		return err
	}
	now := p.now()
	tasks := make([]*task, 0, len(entries))
	for _, e := range entries {
		at := schedule.FromEntry(e)
		tasks = append(tasks, &task{entry: e, at: at, next: at.Next(now)})
	}

	p.mu.Lock()
	p.tasks = tasks
	p.sortLocked()
	p.mu.Unlock()

	p.logger.Info("fetched tasks from timetable", "count", len(tasks))
	for _, t := range tasks {
		p.logger.Debug("task", "id", t.entry.ID, "at", t.at.String(), "next", t.next)
	}
	return nil
}

func (p *Plugin) sortLocked() {
	sort.SliceStable(p.tasks, func(i, j int) bool {
		a, b := p.tasks[i], p.tasks[j]
		if !a.next.Equal(b.next) {
			return a.next.Before(b.next)
		}
		return a.entry.ID < b.entry.ID
	})
}

// nextGroupLocked returns the leading tasks that share the earliest time.
func (p *Plugin) nextGroupLocked() []*task {
	if len(p.tasks) == 0 {
		return nil
	}
	first := p.tasks[0].next
	n := 1
	for n < len(p.tasks) && p.tasks[n].next.Equal(first) {
		n++
	}
	return p.tasks[:n]
}

// rescheduleLocked moves group to its next occurrence after both its
// current time and now, so a forward clock jump fires at most one overdue
// run instead of replaying every missed one.
func (p *Plugin) rescheduleLocked(group []*task) {
	now := p.now()
	for _, t := range group {
		from := t.next
		if now.After(from) {
			from = now
		}
		t.next = t.at.Next(from)
	}
	p.sortLocked()
}

// Tick fires the next group of tasks if it is due. It reports whether
// watering was started.
func (p *Plugin) Tick(ctx context.Context) bool {
	p.mu.Lock()
	if !p.auto || len(p.tasks) == 0 || p.tasks[0].next.IsZero() || p.now().Before(p.tasks[0].next) {
		p.mu.Unlock()
		return false
	}

	group := p.nextGroupLocked()
	var payload topics.StartWateringPayload
	for _, t := range group {
		for _, z := range t.entry.Zones {
			payload.Zones = append(payload.Zones, z)
			payload.Durations = append(payload.Durations, t.entry.Duration)
		}
	}
	p.rescheduleLocked(group)
	p.mu.Unlock()

	p.bus.Publish(topics.Message{Topic: topics.StartWatering, Payload: payload})
	p.logger.Info("sent new watering action", "zones", payload.Zones, "durations", payload.Durations)
	p.broadcast(ctx)
	return true
}

// Run checks for due tasks every tick and reloads the tasks whenever the
// timetable changes, until ctx is done.
func (p *Plugin) Run(ctx context.Context) {
	p.bus.Listen(ctx, topics.TimetableUpdated, func(ctx context.Context, _ topics.Message) {
		if err := p.Load(ctx); err != nil {
			errutil.LogError(p.logger, "reload timetable failed", err)
			return
		}
		p.broadcast(ctx)
	})

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

func (p *Plugin) toggleAuto(ctx context.Context, raw json.RawMessage) error {
	on, err := wire.DecodeInto[bool](raw)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.auto = on
	if on {
		now := p.now()
		for _, t := range p.tasks {
			t.next = t.at.Next(now)
		}
		p.sortLocked()
	}
	p.mu.Unlock()

	p.logger.Info("auto mode toggled", "enabled", on)
	p.broadcast(ctx)
	return nil
}

func (p *Plugin) skipNext(ctx context.Context, _ json.RawMessage) error {
	p.mu.Lock()
	if !p.auto || len(p.tasks) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.rescheduleLocked(p.nextGroupLocked())
	p.mu.Unlock()

	p.logger.Info("skipped next watering")
	p.broadcast(ctx)
	return nil
}

// State returns the current auto mode and the next scheduled watering.
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := State{AutoState: p.auto}
	if len(p.tasks) == 0 || p.tasks[0].next.IsZero() {
		return s
	}
	next := p.tasks[0]
	s.NextTimeDay = fmt.Sprintf("%s %s", next.next.Format("15:04"), schedule.DayName(schedule.Weekday(next.next.Weekday())))

	var parts []string
	for _, t := range p.nextGroupLocked() {
		zones := make([]string, len(t.entry.Zones))
		for i, z := range t.entry.Zones {
			zones[i] = strconv.Itoa(z)
		}
		parts = append(parts, fmt.Sprintf("zones %s for %s", strings.Join(zones, ","), time.Duration(t.entry.Duration)*time.Second))
	}
	s.NextZoneDuration = strings.Join(parts, "; ")
	return s
}

// ClientState returns the plugin_state command.
func (p *Plugin) ClientState(context.Context) (wire.Command, error) {
	return wire.NewCommand(CommandState, p.State())
}

func (p *Plugin) broadcast(ctx context.Context) {
	if err := plugins.Broadcast(ctx, p.sender, p, CommandState, p.State()); err != nil {
		errutil.LogWarn(p.logger, "state broadcast failed", err)
	}
}
