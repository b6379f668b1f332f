// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package store persists the watering timetable.
package store

import (
	"context"
	"crypto/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Daily is the weekday value meaning "every day".
const Daily = 7

// Entry is one timetable row: water Zones for Duration seconds at
// TimeHH:TimeMM on Weekday (0 = Monday, 7 = every day).
type Entry struct {
	ID       string `json:"id,omitempty"`
	TimeHH   int    `json:"time_hh" jsonschema:"minimum=0,maximum=23"`
	TimeMM   int    `json:"time_mm" jsonschema:"minimum=0,maximum=59"`
	Weekday  int    `json:"weekday" jsonschema:"minimum=0,maximum=7"`
	Zones    []int  `json:"zones" jsonschema:"minItems=1"`
	Duration int    `json:"duration" jsonschema:"minimum=1"`
}

// Validate checks the ranges the database also enforces.
func (e Entry) Validate() error {
	fail := func(field string, value any) error {
		return oops.Code(CodeInvalidEntry).
			With("field", field).
			With("value", value).
			Errorf("timetable entry has invalid %s", field)
	}
	switch {
	case e.TimeHH < 0 || e.TimeHH > 23:
		return fail("time_hh", e.TimeHH)
	case e.TimeMM < 0 || e.TimeMM > 59:
		return fail("time_mm", e.TimeMM)
	case e.Weekday < 0 || e.Weekday > Daily:
		return fail("weekday", e.Weekday)
	case len(e.Zones) == 0:
		return fail("zones", e.Zones)
	case e.Duration <= 0:
		return fail("duration", e.Duration)
	}
	return nil
}

// SortEntries orders entries by weekday, time of day, duration and first
// zone, the order the dashboard lists them in.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Weekday != b.Weekday {
			return a.Weekday < b.Weekday
		}
		if am, bm := a.TimeHH*60+a.TimeMM, b.TimeHH*60+b.TimeMM; am != bm {
			return am < bm
		}
		if a.Duration != b.Duration {
			return a.Duration < b.Duration
		}
		return firstZone(a) < firstZone(b)
	})
}

func firstZone(e Entry) int {
	if len(e.Zones) == 0 {
		return 0
	}
	return e.Zones[0]
}

// TimetableStore is the timetable persistence contract.
type TimetableStore interface {
	// List returns every entry in SortEntries order.
	List(ctx context.Context) ([]Entry, error)
	// Add validates and stores entries, assigning IDs, and returns them as
	// stored. Either all entries are stored or none.
	Add(ctx context.Context, entries []Entry) ([]Entry, error)
	// Remove deletes the entry with id.
	Remove(ctx context.Context, id string) error
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID returns a new monotonically increasing entry ID.
func NewID() string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

func errNotFound(id string) error {
	return oops.Code(CodeEntryNotFound).
		With("id", id).
		Errorf("timetable entry %q not found", id)
}
