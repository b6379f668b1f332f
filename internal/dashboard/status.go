// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package dashboard

import (
	"fmt"
	"io"
	"sync"
)

// Status is the lifecycle state of a Transport.
type Status int

// Transport states. Closed and Error are terminal.
const (
	StatusConnecting Status = iota
	StatusOpen
	StatusClosed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// StatusIndicator is told about every lifecycle change of a Transport.
// err is set only for StatusError.
type StatusIndicator interface {
	SetStatus(status Status, err error)
}

// StatusFunc adapts a function to StatusIndicator.
type StatusFunc func(Status, error)

// SetStatus calls f.
func (f StatusFunc) SetStatus(status Status, err error) { f(status, err) }

// LineIndicator prints one line per status change, the console analogue of
// the dashboard's connection badge.
type LineIndicator struct {
	mu  sync.Mutex
	w   io.Writer
	cur Status
}

// NewLineIndicator writes status lines to w.
func NewLineIndicator(w io.Writer) *LineIndicator {
	return &LineIndicator{w: w}
}

// SetStatus records and prints status.
func (l *LineIndicator) SetStatus(status Status, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cur = status
	if err != nil {
		_, _ = fmt.Fprintf(l.w, "connection: %s (%v)\n", status, err)
		return
	}
	_, _ = fmt.Fprintf(l.w, "connection: %s\n", status)
}

// Current returns the last reported status.
func (l *LineIndicator) Current() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}
