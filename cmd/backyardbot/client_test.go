// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/internal/config"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startMemoryBackend serves with a timetable the test can inspect.
func startMemoryBackend(t *testing.T) (*backend, *store.MemoryTimetable) {
	t.Helper()
	st := store.NewMemoryTimetable()
	b := startBackend(t, testConfig(t), &ServeDeps{
		StoreFactory: func(context.Context, config.Config, *slog.Logger) (store.TimetableStore, func(), error) {
			return st, func() {}, nil
		},
	})
	return b, st
}

func clientFor(b *backend) *clientOptions {
	return &clientOptions{host: b.addr, logLevel: "error"}
}

func waitForEntries(t *testing.T, st *store.MemoryTimetable, n int) []store.Entry {
	t.Helper()
	var entries []store.Entry
	require.Eventually(t, func() bool {
		var err error
		entries, err = st.List(context.Background())
		return err == nil && len(entries) == n
	}, 5*time.Second, 20*time.Millisecond)
	return entries
}

func TestRunSend_CommandReachesPlugin(t *testing.T) {
	b, st := startMemoryBackend(t)

	err := runSend(context.Background(), io.Discard, clientFor(b), "timetable", "add_entries",
		`[{"time_hh":6,"time_mm":30,"weekday":0,"zones":[1,2],"duration":600}]`, "")
	require.NoError(t, err)

	entries := waitForEntries(t, st, 1)
	assert.Equal(t, []int{1, 2}, entries[0].Zones)
	assert.Equal(t, 600, entries[0].Duration)
}

func TestRunSend_RedirectToServer(t *testing.T) {
	b, st := startMemoryBackend(t)

	err := runSend(context.Background(), io.Discard, clientFor(b), "timetable", "add_entries",
		`[{"time_hh":19,"time_mm":0,"weekday":7,"zones":[3],"duration":90}]`, wire.ToServer)
	require.NoError(t, err)

	entries := waitForEntries(t, st, 1)
	assert.Equal(t, 7, entries[0].Weekday)
}

func TestRunSend_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		destination string
		wantCode    string
	}{
		{name: "payload not JSON", payload: "{nope", wantCode: wire.CodeInvalidPayload},
		{name: "unknown destination", payload: "null", destination: "sideways", wantCode: "INVALID_DESTINATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &clientOptions{host: "127.0.0.1:1", logLevel: "error"}
			err := runSend(context.Background(), io.Discard, opts, "debug", "x", tt.payload, tt.destination)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestRunTimetableAdd(t *testing.T) {
	b, st := startMemoryBackend(t)
	out := new(bytes.Buffer)

	err := runTimetableAdd(context.Background(), out, io.Discard, clientFor(b),
		[]string{"mon 06:30 zones 1,2 for 10m", "daily 19:00 zone 3 for 90s"})
	require.NoError(t, err)

	waitForEntries(t, st, 2)
	assert.Equal(t, "added mon 06:30 zones 1,2 for 10m0s\nadded daily 19:00 zone 3 for 1m30s\n", out.String())
}

func TestRunTimetableAdd_InvalidEntry(t *testing.T) {
	opts := &clientOptions{host: "127.0.0.1:1", logLevel: "error"}

	err := runTimetableAdd(context.Background(), io.Discard, io.Discard, opts, []string{"someday 06:30 zone 1 for 1m"})
	errutil.AssertErrorCode(t, err, "INVALID_SCHEDULE")
}

func TestRunWatch_PrintsStateUntilCancelled(t *testing.T) {
	b, _ := startMemoryBackend(t)
	out := &syncBuffer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, out, io.Discard, clientFor(b)) }()

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "timetable: no entries") &&
			strings.Contains(s, "timecontrol: auto off, nothing scheduled")
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, out.String(), "connection: open")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, out.String(), "connection: closed")
}

func TestRunWatch_DialFailure(t *testing.T) {
	out := new(bytes.Buffer)
	opts := &clientOptions{host: "127.0.0.1:1", logLevel: "error"}

	err := runWatch(context.Background(), out, io.Discard, opts)
	require.Error(t, err)
	assert.Contains(t, out.String(), "connection: error")
}
