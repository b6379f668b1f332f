// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package views

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/internal/plugins/timecontrol"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/store"
)

type sentCommand struct {
	from    string
	command string
	payload string
}

type sentRedirect struct {
	destination string
	plugin      string
	payload     string
}

type fakeBackend struct {
	mu        sync.Mutex
	commands  []sentCommand
	redirects []sentRedirect
}

func (b *fakeBackend) SendCommand(_ context.Context, sender router.Named, command string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands = append(b.commands, sentCommand{from: sender.Name(), command: command, payload: string(data)})
	return nil
}

func (b *fakeBackend) SendRedirect(_ context.Context, destination, plugin string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.redirects = append(b.redirects, sentRedirect{destination: destination, plugin: plugin, payload: string(data)})
	return nil
}

type fixture struct {
	set     *Set
	out     *bytes.Buffer
	logs    *bytes.Buffer
	backend *fakeBackend
}

func newFixture() *fixture {
	f := &fixture{out: &bytes.Buffer{}, logs: &bytes.Buffer{}, backend: &fakeBackend{}}
	f.set = NewSet(f.out, f.backend, slog.New(slog.NewJSONHandler(f.logs, nil)))
	return f
}

func (f *fixture) lines() []string {
	s := strings.TrimSpace(f.out.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestSet_Names(t *testing.T) {
	f := newFixture()
	var names []string
	for _, v := range f.set.All() {
		names = append(names, v.Name())
	}
	assert.Equal(t, []string{"timetable", "timecontrol", "sprinklerinterface", "debug"}, names)
}

func TestTimetable_ReceiveContents(t *testing.T) {
	f := newFixture()

	f.set.Timetable.ReceiveData(context.Background(), json.RawMessage(`{"command":"timetable_contents","payload":[
		{"id":"a","time_hh":6,"time_mm":30,"weekday":0,"zones":[1,2],"duration":600},
		{"id":"b","time_hh":19,"time_mm":0,"weekday":7,"zones":[3],"duration":90}
	]}`))
	f.set.Timetable.ReceiveData(context.Background(), json.RawMessage(`{"command":"timetable_contents","payload":[]}`))

	assert.Equal(t, []string{
		"timetable: 2 entries [mon 06:30 zones 1,2 for 10m0s; daily 19:00 zone 3 for 1m30s]",
		"timetable: no entries",
	}, f.lines())
	assert.Empty(t, f.set.Timetable.Entries())
}

func TestViews_IgnoreMismatchedPayloads(t *testing.T) {
	tests := []struct {
		name    string
		view    func(*Set) router.Plugin
		payload string
	}{
		{name: "timetable not a command", view: func(s *Set) router.Plugin { return s.Timetable }, payload: `[1,2]`},
		{name: "timetable wrong command", view: func(s *Set) router.Plugin { return s.Timetable }, payload: `{"command":"plugin_state","payload":{}}`},
		{name: "timetable bad entry", view: func(s *Set) router.Plugin { return s.Timetable }, payload: `{"command":"timetable_contents","payload":[{"time_hh":99}]}`},
		{name: "timecontrol wrong type", view: func(s *Set) router.Plugin { return s.TimeControl }, payload: `{"command":"plugin_state","payload":"on"}`},
		{name: "timecontrol missing key", view: func(s *Set) router.Plugin { return s.TimeControl }, payload: `{"command":"plugin_state"}`},
		{name: "sprinkler number", view: func(s *Set) router.Plugin { return s.Sprinkler }, payload: `{"command":"watering_state","payload":5}`},
		{name: "sprinkler null", view: func(s *Set) router.Plugin { return s.Sprinkler }, payload: `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.view(f.set).ReceiveData(context.Background(), json.RawMessage(tt.payload))
			assert.Empty(t, f.lines())
			assert.Contains(t, f.logs.String(), "ignoring")
		})
	}
}

func TestTimeControl_ReceiveState(t *testing.T) {
	f := newFixture()

	f.set.TimeControl.ReceiveData(context.Background(), json.RawMessage(
		`{"command":"plugin_state","payload":{"auto_state":true,"next_time_day":"06:30 tue","next_zone_duration":"zones 3 for 1m0s"}}`))
	f.set.TimeControl.ReceiveData(context.Background(), json.RawMessage(
		`{"command":"plugin_state","payload":{"auto_state":false,"next_time_day":"","next_zone_duration":""}}`))

	assert.Equal(t, []string{
		"timecontrol: auto on, next 06:30 tue, zones 3 for 1m0s",
		"timecontrol: auto off, nothing scheduled",
	}, f.lines())
	assert.Equal(t, timecontrol.State{}, f.set.TimeControl.State())
}

func TestSprinkler_ReceiveState(t *testing.T) {
	f := newFixture()

	f.set.Sprinkler.ReceiveData(context.Background(), json.RawMessage(`{"command":"watering_state","payload":"zone 1: off"}`))

	assert.Equal(t, []string{"sprinklerinterface: zone 1: off"}, f.lines())
	assert.Equal(t, "zone 1: off", f.set.Sprinkler.State())
}

func TestDebug_PrintsAnything(t *testing.T) {
	f := newFixture()

	f.set.Debug.ReceiveData(context.Background(), json.RawMessage(`{"anything":[1]}`))
	f.set.Debug.ReceiveData(context.Background(), json.RawMessage(`null`))

	assert.Equal(t, []string{`debug: {"anything":[1]}`, `debug: null`}, f.lines())
	assert.Equal(t, int64(2), f.set.Debug.Received())
}

func TestViews_Senders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.set.Timetable.AddEntries(ctx, store.Entry{TimeHH: 6, TimeMM: 0, Weekday: 7, Zones: []int{1}, Duration: 60}))
	require.NoError(t, f.set.Timetable.RemoveEntry(ctx, "01ABC"))
	require.NoError(t, f.set.TimeControl.ToggleAutoMode(ctx, false))
	require.NoError(t, f.set.TimeControl.SkipNextWatering(ctx))
	require.NoError(t, f.set.Sprinkler.StartWatering(ctx, []int{1, 2}, []int{60, 30}))
	require.NoError(t, f.set.Sprinkler.StopWatering(ctx, 2))
	require.NoError(t, f.set.Debug.Redirect(ctx, "to_client", "timetable", map[string]any{"command": "timetable_contents", "payload": []int{}}))

	assert.Equal(t, []sentCommand{
		{from: "timetable", command: "add_entries", payload: `[{"time_hh":6,"time_mm":0,"weekday":7,"zones":[1],"duration":60}]`},
		{from: "timetable", command: "remove_entry", payload: `"01ABC"`},
		{from: "timecontrol", command: "toggle_auto_mode", payload: `false`},
		{from: "timecontrol", command: "skip_next_watering", payload: `null`},
		{from: "sprinklerinterface", command: "start_watering", payload: `{"zones":[1,2],"durations":[60,30]}`},
		{from: "sprinklerinterface", command: "stop_watering", payload: `{"zones":[2]}`},
	}, f.backend.commands)
	assert.Equal(t, []sentRedirect{
		{destination: "to_client", plugin: "timetable", payload: `{"command":"timetable_contents","payload":[]}`},
	}, f.backend.redirects)
}
