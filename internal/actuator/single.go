// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package actuator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

// Task asks for Zone to be watered for Duration.
type Task struct {
	Zone     int
	Duration time.Duration
}

// Single drives one valve for one zone. Tasks extend a run deadline; the
// valve is open while the deadline lies in the future.
type Single struct {
	zone     int
	valve    Valve
	logger   *slog.Logger
	now      func() time.Time
	onChange func(zone int, on bool)

	mu       sync.Mutex
	deadline time.Time
	wake     chan struct{}
}

// SingleOption configures a Single.
type SingleOption func(*Single)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SingleOption {
	return func(s *Single) { s.now = now }
}

// WithOnChange registers a callback run after the valve opens or closes.
func WithOnChange(fn func(zone int, on bool)) SingleOption {
	return func(s *Single) { s.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SingleOption {
	return func(s *Single) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSingle returns an idle actuator for zone.
func NewSingle(zone int, valve Valve, opts ...SingleOption) *Single {
	s := &Single{
		zone:     zone,
		valve:    valve,
		logger:   slog.Default(),
		now:      time.Now,
		onChange: func(int, bool) {},
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("zone", zone)
	return s
}

// Zone returns the managed zone.
func (s *Single) Zone() int { return s.zone }

// Active reports whether the valve is open.
func (s *Single) Active() bool { return s.valve.Active() }

// StartWatering adds the durations of tasks for this zone to the run
// deadline. Tasks for other zones are ignored.
func (s *Single) StartWatering(tasks ...Task) {
	var total time.Duration
	for _, t := range tasks {
		if t.Zone == s.zone && t.Duration > 0 {
			total += t.Duration
		}
	}
	if total == 0 {
		return
	}

	s.mu.Lock()
	now := s.now()
	if s.deadline.Before(now) {
		s.deadline = now
	}
	s.deadline = s.deadline.Add(total)
	s.mu.Unlock()

	s.logger.Info("watering scheduled", "added", total)
	s.poke()
}

// StopWatering clears the deadline if zones contains this zone.
func (s *Single) StopWatering(zones ...int) {
	if !slices.Contains(zones, s.zone) {
		return
	}
	s.mu.Lock()
	s.deadline = time.Time{}
	s.mu.Unlock()

	s.logger.Info("watering stopped")
	s.poke()
}

// Remaining returns the time left until the valve closes.
func (s *Single) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d := s.deadline.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

func (s *Single) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run opens and closes the valve to follow the deadline until ctx is done.
// The valve is closed before Run returns.
func (s *Single) Run(ctx context.Context) {
	defer s.set(context.WithoutCancel(ctx), false)

	for {
		remaining := s.Remaining()
		if remaining > 0 {
			if !s.valve.Active() {
				observability.RecordWateringRun(s.zone)
				s.set(ctx, true)
			}
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			}
			continue
		}

		if s.valve.Active() {
			s.set(ctx, false)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

func (s *Single) set(ctx context.Context, on bool) {
	if s.valve.Active() == on {
		return
	}
	if err := s.valve.Set(ctx, on); err != nil {
		errutil.LogError(s.logger, "valve switch failed", err, "on", on)
		return
	}
	s.onChange(s.zone, on)
}
