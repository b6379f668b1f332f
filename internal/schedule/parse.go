// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/store"
)

var exprLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Clock", Pattern: `\d{1,2}:\d{2}`},
	{Name: "Duration", Pattern: `(\d+(h|m|s))+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-z]+`},
	{Name: "Punct", Pattern: `,`},
	{Name: "whitespace", Pattern: `\s+`},
})

// expr is "<day> <hh:mm> zone[s] <n>[,<n>...] for <duration>".
type expr struct {
	Day   string `parser:"@Ident"`
	Clock string `parser:"@Clock"`
	Zones []int  `parser:"('zone' | 'zones') @Int (',' @Int)*"`
	For   string `parser:"'for' @Duration"`
}

var exprParser *participle.Parser[expr]

func init() {
	var err error
	exprParser, err = participle.Build[expr](participle.Lexer(exprLexer))
	if err != nil {
		panic(fmt.Sprintf("failed to build schedule parser: %v", err))
	}
}

// Parse reads an entry such as "mon 06:30 zones 1,2 for 10m" or
// "daily 19:00 zone 3 for 90s". The result has no ID.
func Parse(text string) (store.Entry, error) {
	x, err := exprParser.ParseString("", strings.ToLower(strings.TrimSpace(text)))
	if err != nil {
		return store.Entry{}, oops.Code("INVALID_SCHEDULE").With("text", text).Wrapf(err, "parse schedule")
	}

	weekday := -1
	for i, name := range dayNames {
		if x.Day == name {
			weekday = i
		}
	}
	if weekday < 0 {
		return store.Entry{}, oops.Code("INVALID_SCHEDULE").
			With("text", text).
			Errorf("unknown day %q, want one of %s", x.Day, strings.Join(dayNames[:], ", "))
	}

	hh, mm, _ := strings.Cut(x.Clock, ":")
	hour, _ := strconv.Atoi(hh)
	minute, _ := strconv.Atoi(mm)

	d, err := time.ParseDuration(x.For)
	if err != nil {
		return store.Entry{}, oops.Code("INVALID_SCHEDULE").With("text", text).Wrap(err)
	}
	if d%time.Second != 0 {
		return store.Entry{}, oops.Code("INVALID_SCHEDULE").
			With("text", text).
			Errorf("duration %s is not a whole number of seconds", d)
	}

	e := store.Entry{
		TimeHH:   hour,
		TimeMM:   minute,
		Weekday:  weekday,
		Zones:    x.Zones,
		Duration: int(d / time.Second),
	}
	if err := e.Validate(); err != nil {
		return store.Entry{}, err
	}
	return e, nil
}
