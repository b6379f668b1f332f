// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryTimetable keeps the timetable in process memory. Used when no
// database is configured and in tests.
type MemoryTimetable struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryTimetable returns an empty timetable.
func NewMemoryTimetable() *MemoryTimetable {
	return &MemoryTimetable{entries: make(map[string]Entry)}
}

// List implements TimetableStore.
func (m *MemoryTimetable) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		e.Zones = slices.Clone(e.Zones)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.ID, b.ID) })
	SortEntries(out)
	return out, nil
}

// Add implements TimetableStore.
func (m *MemoryTimetable) Add(_ context.Context, entries []Entry) ([]Entry, error) {
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]Entry, len(entries))
	for i, e := range entries {
		e.ID = NewID()
		e.Zones = slices.Clone(e.Zones)
		m.entries[e.ID] = e
		stored[i] = e
	}
	return stored, nil
}

// Remove implements TimetableStore.
func (m *MemoryTimetable) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return errNotFound(id)
	}
	delete(m.entries, id)
	return nil
}
