// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package schedule computes when timetable entries fire and parses the
// short text form used on the command line.
package schedule

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/backyardbot/backyardbot/internal/store"
)

// dayNames is indexed by weekday number, Monday = 0; index 7 is every day.
var dayNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun", "daily"}

// Time is a wall-clock time on a set of weekdays (Monday = 0).
type Time struct {
	Hour     int
	Minute   int
	Weekdays []int
}

// FromEntry returns the schedule of a timetable entry.
func FromEntry(e store.Entry) Time {
	return Time{Hour: e.TimeHH, Minute: e.TimeMM, Weekdays: expandWeekday(e.Weekday)}
}

func expandWeekday(w int) []int {
	if w == store.Daily {
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
	return []int{w}
}

// Weekday converts a time.Weekday to the Monday = 0 numbering.
func Weekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// Next returns the first occurrence strictly after after, in after's
// location. It returns the zero time when Weekdays is empty.
func (t Time) Next(after time.Time) time.Time {
	if len(t.Weekdays) == 0 {
		return time.Time{}
	}
	y, m, d := after.Date()
	for i := 0; i <= 7; i++ {
		candidate := time.Date(y, m, d+i, t.Hour, t.Minute, 0, 0, after.Location())
		if candidate.After(after) && slices.Contains(t.Weekdays, Weekday(candidate.Weekday())) {
			return candidate
		}
	}
	return time.Time{}
}

// String renders the time as "06:30 mon,thu" or "19:00 daily".
func (t Time) String() string {
	days := "daily"
	if len(t.Weekdays) != 7 {
		names := make([]string, len(t.Weekdays))
		for i, w := range t.Weekdays {
			names[i] = DayName(w)
		}
		days = strings.Join(names, ",")
	}
	return fmt.Sprintf("%02d:%02d %s", t.Hour, t.Minute, days)
}

// DayName returns the short name for a weekday number, or "?".
func DayName(w int) string {
	if w < 0 || w >= len(dayNames) {
		return "?"
	}
	return dayNames[w]
}

// Describe renders an entry in the form Parse accepts.
func Describe(e store.Entry) string {
	zones := make([]string, len(e.Zones))
	for i, z := range e.Zones {
		zones[i] = fmt.Sprint(z)
	}
	word := "zones"
	if len(e.Zones) == 1 {
		word = "zone"
	}
	return fmt.Sprintf("%s %02d:%02d %s %s for %s",
		DayName(e.Weekday), e.TimeHH, e.TimeMM, word, strings.Join(zones, ","),
		time.Duration(e.Duration)*time.Second)
}
