// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/pkg/errutil"
)

func TestNewCommand(t *testing.T) {
	cmd, err := NewCommand("toggle_auto_mode", true)
	require.NoError(t, err)

	data, err := json.Marshal(cmd)
	require.NoError(t, err)
	assert.JSONEq(t, `{"command":"toggle_auto_mode","payload":true}`, string(data))
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand(json.RawMessage(`{"command":"remove_entry","payload":"01J","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, "remove_entry", cmd.Command)
	assert.JSONEq(t, `"01J"`, string(cmd.Payload))
}

func TestDecodeCommand_NullPayloadIsPresent(t *testing.T) {
	cmd, err := DecodeCommand(json.RawMessage(`{"command":"skip_next_watering","payload":null}`))
	require.NoError(t, err)
	assert.Equal(t, "skip_next_watering", cmd.Command)
}

func TestDecodeCommand_Rejects(t *testing.T) {
	tests := map[string]string{
		"null":            `null`,
		"array":           `[]`,
		"string":          `"add_entries"`,
		"missing payload": `{"command":"add_entries"}`,
		"missing command": `{"payload":[]}`,
		"numeric command": `{"command":7,"payload":[]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCommand(json.RawMessage(raw))
			errutil.AssertErrorCode(t, err, CodeInvalidPayload)
		})
	}
}
