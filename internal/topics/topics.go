// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package topics is the in-process publish/subscribe bus backend plugins
// use to talk to each other.
package topics

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/backyardbot/backyardbot/internal/observability"
)

// Well-known topics.
const (
	// StartWatering carries a StartWateringPayload.
	StartWatering = "watering/start"
	// TimetableUpdated has no payload; the timetable changed.
	TimetableUpdated = "database_update/timetable"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// handlerTimeout bounds one handler invocation in Listen.
const handlerTimeout = 5 * time.Second

// Message is one publication on a topic.
type Message struct {
	Topic   string
	Payload any
}

// StartWateringPayload asks the actuators to water Zones[i] for
// Durations[i] seconds.
type StartWateringPayload struct {
	Zones     []int `json:"zones"`
	Durations []int `json:"durations"`
}

// Bus distributes messages to the subscribers of their topic.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	buffer int
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBus creates a bus whose subscriber channels hold buffer messages.
func NewBus(buffer int, logger *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]chan Message),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe returns a channel receiving every message published on topic.
func (b *Bus) Subscribe(topic string) <-chan Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Message, b.buffer)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (b *Bus) Unsubscribe(topic string, ch <-chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Publish delivers msg to every subscriber of msg.Topic without blocking.
// A subscriber with a full buffer misses the message.
func (b *Bus) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[msg.Topic] {
		select {
		case ch <- msg:
		default:
			observability.RecordDrop(observability.DropQueueFull)
			b.logger.Warn("topic message dropped: subscriber buffer full", "topic", msg.Topic)
		}
	}
}

// Listen subscribes to topic and calls fn for each message on its own
// goroutine until ctx is done. Messages are handled one at a time.
func (b *Bus) Listen(ctx context.Context, topic string, fn func(context.Context, Message)) {
	ch := b.Subscribe(topic)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.Unsubscribe(topic, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handle(ctx, msg, fn)
			}
		}
	}()
}

func (b *Bus) handle(ctx context.Context, msg Message, fn func(context.Context, Message)) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	fn(ctx, msg)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		b.logger.Warn("topic handler exceeded timeout", "topic", msg.Topic, "timeout", handlerTimeout)
	}
}

// Wait blocks until every Listen goroutine has returned.
func (b *Bus) Wait() {
	b.wg.Wait()
}
