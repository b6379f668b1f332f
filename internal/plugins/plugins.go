// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package plugins holds what the backend plugins share: command dispatch
// and the state push to newly connected clients.
package plugins

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Handler runs one command with its payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Commands maps command names to handlers.
type Commands map[string]Handler

// Handle decodes raw as a command and runs its handler. Malformed
// payloads, unknown commands and handler errors are logged and ignored.
func (c Commands) Handle(ctx context.Context, logger *slog.Logger, raw json.RawMessage) {
	cmd, err := wire.DecodeCommand(raw)
	if err != nil {
		errutil.LogWarn(logger, "ignoring malformed payload", err)
		return
	}
	h, ok := c[cmd.Command]
	if !ok {
		logger.Warn("ignoring unknown command", "command", cmd.Command)
		return
	}
	if err := h(ctx, cmd.Payload); err != nil {
		errutil.LogError(logger, "command failed", err, "command", cmd.Command)
	}
}

// StateProvider is implemented by plugins that push their current state
// to clients as they connect.
type StateProvider interface {
	ClientState(ctx context.Context) (wire.Command, error)
}

// Runner is implemented by plugins with a background loop. Run returns
// when ctx is done.
type Runner interface {
	Run(ctx context.Context)
}

// Broadcast sends {command, payload} to every client, tagged with from.
func Broadcast(ctx context.Context, sender router.Sender, from router.Named, command string, payload any) error {
	cmd, err := wire.NewCommand(command, payload)
	if err != nil {
		return err
	}
	return sender.Send(ctx, cmd, from)
}
