// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package sprinkler is the backend plugin that hands watering tasks to
// the zone actuators.
package sprinkler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/backyardbot/backyardbot/internal/actuator"
	"github.com/backyardbot/backyardbot/internal/plugins"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/topics"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Name is the plugin name.
const Name = "sprinklerinterface"

// Commands understood and sent by the plugin.
const (
	CommandStart = "start_watering"
	CommandStop  = "stop_watering"
	CommandState = "watering_state"
)

// StopPayload names the zones to stop.
type StopPayload struct {
	Zones []int `json:"zones"`
}

// Plugin connects watering requests to the actuator bank.
type Plugin struct {
	sender   router.Sender
	bank     *actuator.Bank
	bus      *topics.Bus
	logger   *slog.Logger
	commands plugins.Commands
	changed  chan struct{}
}

// New creates the plugin and subscribes it to valve changes of bank.
// It must be called before bank.Run.
func New(sender router.Sender, bank *actuator.Bank, bus *topics.Bus, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Plugin{
		sender:  sender,
		bank:    bank,
		bus:     bus,
		logger:  logger,
		changed: make(chan struct{}, 1),
	}
	p.commands = plugins.Commands{
		CommandStart: p.startCommand,
		CommandStop:  p.stopCommand,
	}
	bank.OnChange(p.valveChanged)
	return p
}

// Name implements router.Plugin.
func (p *Plugin) Name() string { return Name }

// ReceiveData implements router.Plugin.
func (p *Plugin) ReceiveData(ctx context.Context, payload json.RawMessage) {
	p.commands.Handle(ctx, p.logger, payload)
}

// Run starts scheduled watering published on the bus and reports valve
// changes to clients until ctx is done.
func (p *Plugin) Run(ctx context.Context) {
	p.bus.Listen(ctx, topics.StartWatering, func(ctx context.Context, msg topics.Message) {
		payload, ok := msg.Payload.(topics.StartWateringPayload)
		if !ok {
			p.logger.Warn("ignoring start watering message", "payload_type", fmt.Sprintf("%T", msg.Payload))
			return
		}
		p.Start(ctx, payload)
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.changed:
			p.broadcast(ctx)
		}
	}
}

// Start pairs zones with durations and hands the tasks to the actuators.
func (p *Plugin) Start(ctx context.Context, payload topics.StartWateringPayload) {
	n := min(len(payload.Zones), len(payload.Durations))
	if len(payload.Zones) != len(payload.Durations) {
		p.logger.Warn("zones and durations differ in length; extra items ignored",
			"zones", len(payload.Zones), "durations", len(payload.Durations))
	}
	tasks := make([]actuator.Task, 0, n)
	for i := range n {
		tasks = append(tasks, actuator.Task{
			Zone:     payload.Zones[i],
			Duration: time.Duration(payload.Durations[i]) * time.Second,
		})
	}
	p.bank.Start(tasks...)
	p.logger.Info("watering started", "zones", payload.Zones[:n])
	p.broadcast(ctx)
}

func (p *Plugin) startCommand(ctx context.Context, raw json.RawMessage) error {
	payload, err := wire.DecodeInto[topics.StartWateringPayload](raw)
	if err != nil {
		return err
	}
	p.Start(ctx, payload)
	return nil
}

func (p *Plugin) stopCommand(ctx context.Context, raw json.RawMessage) error {
	payload, err := wire.DecodeInto[StopPayload](raw)
	if err != nil {
		return err
	}
	p.bank.Stop(payload.Zones...)
	p.logger.Info("watering stopped", "zones", payload.Zones)
	p.broadcast(ctx)
	return nil
}

func (p *Plugin) valveChanged(int, bool) {
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// StateText describes every zone, e.g. "zone 1: on (4m30s left), zone 2: off".
func (p *Plugin) StateText() string {
	states := p.bank.States()
	if len(states) == 0 {
		return "no zones configured"
	}
	parts := make([]string, 0, len(states))
	for _, s := range states {
		switch {
		case s.Active || s.Remaining > 0:
			parts = append(parts, fmt.Sprintf("zone %d: on (%s left)", s.Zone, s.Remaining.Round(time.Second)))
		default:
			parts = append(parts, fmt.Sprintf("zone %d: off", s.Zone))
		}
	}
	return strings.Join(parts, ", ")
}

// ClientState returns the watering_state command.
func (p *Plugin) ClientState(context.Context) (wire.Command, error) {
	return wire.NewCommand(CommandState, p.StateText())
}

func (p *Plugin) broadcast(ctx context.Context) {
	if err := plugins.Broadcast(ctx, p.sender, p, CommandState, p.StateText()); err != nil {
		errutil.LogWarn(p.logger, "state broadcast failed", err)
	}
}
