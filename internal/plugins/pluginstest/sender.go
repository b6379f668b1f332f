// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package pluginstest provides test doubles for backend plugins.
package pluginstest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// Sent is one recorded command.
type Sent struct {
	From    string
	Command string
	Payload json.RawMessage
}

// Sender records every command sent through it. Payloads that are not
// commands are recorded with an empty Command and the raw JSON.
type Sender struct {
	// Err, when set, is returned by Send after recording.
	Err error

	mu   sync.Mutex
	sent []Sent
}

// Send implements router.Sender.
func (s *Sender) Send(_ context.Context, payload any, from router.Named) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	rec := Sent{From: from.Name(), Payload: data}
	if cmd, err := wire.DecodeCommand(data); err == nil {
		rec.Command = cmd.Command
		rec.Payload = cmd.Payload
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, rec)
	return s.Err
}

// All returns everything sent so far.
func (s *Sender) All() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Last returns the most recent command with the given name.
func (s *Sender) Last(command string) (Sent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].Command == command {
			return s.sent[i], true
		}
	}
	return Sent{}, false
}

// Count returns how many commands with the given name were sent.
func (s *Sender) Count(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.sent {
		if rec.Command == command {
			n++
		}
	}
	return n
}
