// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package plugins_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/internal/plugins"
	"github.com/backyardbot/backyardbot/internal/plugins/pluginstest"
)

type named string

func (n named) Name() string { return string(n) }

func TestCommands_Handle(t *testing.T) {
	var got []string
	cmds := plugins.Commands{
		"ping": func(_ context.Context, payload json.RawMessage) error {
			got = append(got, string(payload))
			return nil
		},
		"fail": func(context.Context, json.RawMessage) error {
			return oops.Code("BROKEN").Errorf("nope")
		},
	}

	tests := []struct {
		name    string
		raw     string
		wantGot []string
		wantLog string
	}{
		{name: "dispatches", raw: `{"command":"ping","payload":{"n":1}}`, wantGot: []string{`{"n":1}`}},
		{name: "null payload", raw: `{"command":"ping","payload":null}`, wantGot: []string{`null`}},
		{name: "unknown command", raw: `{"command":"pong","payload":1}`, wantLog: "ignoring unknown command"},
		{name: "not a command", raw: `[1,2]`, wantLog: "ignoring malformed payload"},
		{name: "missing payload key", raw: `{"command":"ping"}`, wantLog: "ignoring malformed payload"},
		{name: "handler error", raw: `{"command":"fail","payload":{}}`, wantLog: "BROKEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			cmds.Handle(context.Background(), logger, json.RawMessage(tt.raw))

			assert.Equal(t, tt.wantGot, got)
			if tt.wantLog != "" {
				assert.Contains(t, logs.String(), tt.wantLog)
			}
		})
	}
}

func TestBroadcast(t *testing.T) {
	sender := &pluginstest.Sender{}
	require.NoError(t, plugins.Broadcast(context.Background(), sender, named("timetable"), "timetable_contents", []int{}))

	last, ok := sender.Last("timetable_contents")
	require.True(t, ok)
	assert.Equal(t, "timetable", last.From)
	assert.JSONEq(t, `[]`, string(last.Payload))
}

func TestBroadcast_SenderError(t *testing.T) {
	sender := &pluginstest.Sender{Err: errors.New("closed")}
	err := plugins.Broadcast(context.Background(), sender, named("debug"), "x", nil)
	require.Error(t, err)
}
