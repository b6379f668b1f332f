// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package actuator

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Bank routes watering tasks to the actuator managing each zone.
type Bank struct {
	logger    *slog.Logger
	actuators map[int]*Single
	wg        sync.WaitGroup
}

// NewBank groups actuators. A later actuator for the same zone replaces
// an earlier one.
func NewBank(logger *slog.Logger, actuators ...*Single) *Bank {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bank{logger: logger, actuators: make(map[int]*Single, len(actuators))}
	for _, a := range actuators {
		if _, ok := b.actuators[a.Zone()]; ok {
			logger.Warn("actuator conflict: replacing actuator for zone", "zone", a.Zone())
		}
		b.actuators[a.Zone()] = a
	}
	return b
}

// OnChange makes every actuator call fn after its valve opens or closes.
// It must be called before Run.
func (b *Bank) OnChange(fn func(zone int, on bool)) {
	for _, a := range b.actuators {
		a.onChange = fn
	}
}

// Zones returns the managed zones in ascending order.
func (b *Bank) Zones() []int {
	zones := make([]int, 0, len(b.actuators))
	for z := range b.actuators {
		zones = append(zones, z)
	}
	sort.Ints(zones)
	return zones
}

// Start hands each task to its zone's actuator. Tasks for unmanaged zones
// are logged and skipped.
func (b *Bank) Start(tasks ...Task) {
	for _, t := range tasks {
		a, ok := b.actuators[t.Zone]
		if !ok {
			b.logger.Warn("no actuator for zone", "zone", t.Zone)
			continue
		}
		a.StartWatering(t)
	}
}

// Stop stops watering of zones.
func (b *Bank) Stop(zones ...int) {
	for _, a := range b.actuators {
		a.StopWatering(zones...)
	}
}

// StopAll stops every zone.
func (b *Bank) StopAll() {
	b.Stop(b.Zones()...)
}

// ZoneState is a snapshot of one zone.
type ZoneState struct {
	Zone      int
	Active    bool
	Remaining time.Duration
}

// States returns a snapshot of every zone in zone order.
func (b *Bank) States() []ZoneState {
	out := make([]ZoneState, 0, len(b.actuators))
	for _, z := range b.Zones() {
		a := b.actuators[z]
		out = append(out, ZoneState{Zone: z, Active: a.Active(), Remaining: a.Remaining()})
	}
	return out
}

// Run starts every actuator loop. They stop when ctx is done; Wait blocks
// until they have.
func (b *Bank) Run(ctx context.Context) {
	for _, a := range b.actuators {
		b.wg.Add(1)
		go func(a *Single) {
			defer b.wg.Done()
			a.Run(ctx)
		}(a)
	}
}

// Wait blocks until every actuator loop started by Run has returned.
func (b *Bank) Wait() {
	b.wg.Wait()
}
