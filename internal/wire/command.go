// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package wire

import (
	"encoding/json"

	"github.com/samber/oops"
)

// Command is the payload shape every plugin in this system uses:
// a command name and its argument.
type Command struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload"`
}

// NewCommand encodes payload under command name.
func NewCommand(name string, payload any) (Command, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Command{}, oops.Code(CodeEncodeFailed).
			With("command", name).
			Wrapf(err, "encode command payload")
	}
	return Command{Command: name, Payload: body}, nil
}

// DecodeCommand requires raw to be an object holding both a string
// "command" and a "payload" key.
func DecodeCommand(raw json.RawMessage) (Command, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return Command{}, oops.Code(CodeInvalidPayload).
			Errorf("payload is not a command object")
	}
	name, okName := fields["command"]
	body, okBody := fields["payload"]
	if !okName || !okBody {
		return Command{}, oops.Code(CodeInvalidPayload).
			With("has_command", okName).
			With("has_payload", okBody).
			Errorf("command object needs both command and payload")
	}
	var cmd Command
	if err := json.Unmarshal(name, &cmd.Command); err != nil {
		return Command{}, oops.Code(CodeInvalidPayload).Wrapf(err, "command name is not a string")
	}
	cmd.Payload = body
	return cmd, nil
}
