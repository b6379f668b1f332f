// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package sprinkler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/backyardbot/backyardbot/internal/actuator"
	"github.com/backyardbot/backyardbot/internal/plugins/pluginstest"
	"github.com/backyardbot/backyardbot/internal/topics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	plugin *Plugin
	sender *pluginstest.Sender
	bank   *actuator.Bank
	bus    *topics.Bus
	valves map[int]*actuator.MemoryValve
}

func newFixture(zones ...int) *fixture {
	f := &fixture{
		sender: &pluginstest.Sender{},
		bus:    topics.NewBus(0, nil),
		valves: make(map[int]*actuator.MemoryValve),
	}
	singles := make([]*actuator.Single, 0, len(zones))
	for _, z := range zones {
		v := actuator.NewMemoryValve(z, nil)
		f.valves[z] = v
		singles = append(singles, actuator.NewSingle(z, v))
	}
	f.bank = actuator.NewBank(nil, singles...)
	f.plugin = New(f.sender, f.bank, f.bus, nil)
	return f
}

func (f *fixture) remaining(zone int) time.Duration {
	for _, s := range f.bank.States() {
		if s.Zone == zone {
			return s.Remaining
		}
	}
	return 0
}

func TestPlugin_StartWateringCommand(t *testing.T) {
	f := newFixture(1, 2)

	f.plugin.ReceiveData(context.Background(), json.RawMessage(
		`{"command":"start_watering","payload":{"zones":[1,9],"durations":[60,30]}}`))

	assert.InDelta(t, time.Minute, f.remaining(1), float64(time.Second))
	assert.Zero(t, f.remaining(2))

	last, ok := f.sender.Last(CommandState)
	require.True(t, ok)
	assert.Equal(t, Name, last.From)
	var text string
	require.NoError(t, json.Unmarshal(last.Payload, &text))
	assert.Contains(t, text, "zone 1: on")
	assert.Contains(t, text, "zone 2: off")
}

func TestPlugin_StartMismatchedLengths(t *testing.T) {
	f := newFixture(1, 2)

	f.plugin.Start(context.Background(), topics.StartWateringPayload{Zones: []int{1, 2}, Durations: []int{30}})

	assert.Positive(t, f.remaining(1))
	assert.Zero(t, f.remaining(2))
}

func TestPlugin_StopWateringCommand(t *testing.T) {
	f := newFixture(1, 2)
	f.bank.Start(actuator.Task{Zone: 1, Duration: time.Hour}, actuator.Task{Zone: 2, Duration: time.Hour})

	f.plugin.ReceiveData(context.Background(), json.RawMessage(`{"command":"stop_watering","payload":{"zones":[2]}}`))

	assert.Positive(t, f.remaining(1))
	assert.Zero(t, f.remaining(2))
	assert.Equal(t, 1, f.sender.Count(CommandState))
}

func TestPlugin_RejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "start without durations", raw: `{"command":"start_watering","payload":{"zones":[1]}}`},
		{name: "start with strings", raw: `{"command":"start_watering","payload":{"zones":["1"],"durations":[1]}}`},
		{name: "stop without zones", raw: `{"command":"stop_watering","payload":{}}`},
		{name: "unknown command", raw: `{"command":"flood","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(1)
			f.plugin.ReceiveData(context.Background(), json.RawMessage(tt.raw))
			assert.Zero(t, f.remaining(1))
			assert.Empty(t, f.sender.All())
		})
	}
}

func TestPlugin_StateText(t *testing.T) {
	assert.Equal(t, "no zones configured", newFixture().plugin.StateText())
	assert.Equal(t, "zone 1: off, zone 3: off", newFixture(3, 1).plugin.StateText())
}

func TestPlugin_RunHandlesScheduledWatering(t *testing.T) {
	f := newFixture(4)
	ctx, cancel := context.WithCancel(context.Background())

	f.bank.Run(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.plugin.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		if f.valves[4].Active() {
			return true
		}
		f.bus.Publish(topics.Message{Topic: topics.StartWatering, Payload: topics.StartWateringPayload{
			Zones: []int{4}, Durations: []int{3600},
		}})
		return false
	}, time.Second, 10*time.Millisecond)

	// The valve opening is reported to clients.
	require.Eventually(t, func() bool { return f.sender.Count(CommandState) >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	f.bus.Wait()
	f.bank.Wait()
	assert.False(t, f.valves[4].Active())
}

func TestPlugin_ClientState(t *testing.T) {
	f := newFixture(1)

	cmd, err := f.plugin.ClientState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CommandState, cmd.Command)
	assert.JSONEq(t, `"zone 1: off"`, string(cmd.Payload))
}
