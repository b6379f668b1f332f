// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package views holds the console dashboard views. Each decodes the
// payloads of one backend plugin and prints a one-line summary.
package views

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Backend is the part of dashboard.Connection views send through.
type Backend interface {
	SendCommand(ctx context.Context, sender router.Named, command string, payload any) error
	SendRedirect(ctx context.Context, destination, receivingPlugin string, payload any) error
}

// printer serializes lines from several views onto one writer.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

// base carries what every view shares.
type base struct {
	name    string
	out     *printer
	backend Backend
	logger  *slog.Logger
}

func (b *base) Name() string { return b.name }

// command decodes payload as a command, logging failures.
func (b *base) command(payload json.RawMessage) (wire.Command, bool) {
	cmd, err := wire.DecodeCommand(payload)
	if err != nil {
		errutil.LogWarn(b.logger, "ignoring payload", err, "view", b.name)
		return wire.Command{}, false
	}
	return cmd, true
}

func (b *base) unknown(cmd wire.Command) {
	b.logger.Warn("ignoring unknown command", "view", b.name, "command", cmd.Command)
}

func (b *base) rejected(cmd wire.Command, err error) {
	errutil.LogWarn(b.logger, "ignoring payload", err, "view", b.name, "command", cmd.Command)
}

func (b *base) send(ctx context.Context, command string, payload any) error {
	return b.backend.SendCommand(ctx, b, command, payload)
}

func newBase(name string, out *printer, backend Backend, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	return base{name: name, out: out, backend: backend, logger: logger}
}

// Set is the four views sharing one output.
type Set struct {
	Timetable   *Timetable
	TimeControl *TimeControl
	Sprinkler   *Sprinkler
	Debug       *Debug
}

// NewSet creates every view writing to out.
func NewSet(out io.Writer, backend Backend, logger *slog.Logger) *Set {
	p := &printer{w: out}
	return &Set{
		Timetable:   newTimetable(p, backend, logger),
		TimeControl: newTimeControl(p, backend, logger),
		Sprinkler:   newSprinkler(p, backend, logger),
		Debug:       newDebug(p, backend, logger),
	}
}

// All returns the views for registration.
func (s *Set) All() []router.Plugin {
	return []router.Plugin{s.Timetable, s.TimeControl, s.Sprinkler, s.Debug}
}
