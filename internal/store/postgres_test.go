// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/pkg/errutil"
)

var _ TimetableStore = (*PostgresTimetable)(nil)
var _ TimetableStore = (*MemoryTimetable)(nil)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestPostgresTimetable_List(t *testing.T) {
	columns := []string{"id", "time_hh", "time_mm", "weekday", "zones", "duration_seconds"}

	tests := []struct {
		name    string
		setup   func(mock pgxmock.PgxPoolIface)
		want    []Entry
		errCode string
	}{
		{
			name: "sorted entries",
			setup: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(columns).
					AddRow("01A", 19, 0, 7, []int{3}, 90).
					AddRow("01B", 6, 30, 0, []int{1, 2}, 600)
				mock.ExpectQuery(`SELECT id, time_hh, time_mm, weekday, zones, duration_seconds`).
					WillReturnRows(rows)
			},
			want: []Entry{
				{ID: "01B", TimeHH: 6, TimeMM: 30, Weekday: 0, Zones: []int{1, 2}, Duration: 600},
				{ID: "01A", TimeHH: 19, TimeMM: 0, Weekday: 7, Zones: []int{3}, Duration: 90},
			},
		},
		{
			name: "empty table",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id`).WillReturnRows(pgxmock.NewRows(columns))
			},
			want: []Entry{},
		},
		{
			name: "query error",
			setup: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT id`).WillReturnError(errors.New("connection refused"))
			},
			errCode: CodeQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			tt.setup(mock)

			got, err := NewPostgresTimetable(mock).List(context.Background())
			if tt.errCode != "" {
				errutil.AssertErrorCode(t, err, tt.errCode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostgresTimetable_Add(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO timetable_entries`).
		WithArgs(pgxmock.AnyArg(), 6, 30, 0, []int{1, 2}, 600).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO timetable_entries`).
		WithArgs(pgxmock.AnyArg(), 19, 0, 7, []int{3}, 90).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	stored, err := NewPostgresTimetable(mock).Add(context.Background(), []Entry{
		validEntry(),
		{TimeHH: 19, Weekday: Daily, Zones: []int{3}, Duration: 90},
	})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.NotEmpty(t, stored[0].ID)
	assert.Less(t, stored[0].ID, stored[1].ID)
}

func TestPostgresTimetable_Add_CheckViolationRollsBack(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO timetable_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "timetable_entries_zones_check"})
	mock.ExpectRollback()

	_, err := NewPostgresTimetable(mock).Add(context.Background(), []Entry{validEntry()})
	errutil.AssertErrorCode(t, err, CodeInvalidEntry)
	errutil.AssertErrorContext(t, err, "constraint", "timetable_entries_zones_check")
}

func TestPostgresTimetable_Add_InvalidEntryNeverQueries(t *testing.T) {
	mock := newMock(t)
	bad := validEntry()
	bad.Weekday = 9

	_, err := NewPostgresTimetable(mock).Add(context.Background(), []Entry{bad})
	errutil.AssertErrorCode(t, err, CodeInvalidEntry)
}

func TestPostgresTimetable_Add_CommitFails(t *testing.T) {
	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO timetable_entries`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	_, err := NewPostgresTimetable(mock).Add(context.Background(), []Entry{validEntry()})
	errutil.AssertErrorCode(t, err, CodeQueryFailed)
}

func TestPostgresTimetable_Remove(t *testing.T) {
	tests := []struct {
		name    string
		result  pgconn.CommandTag
		err     error
		errCode string
	}{
		{name: "deleted", result: pgxmock.NewResult("DELETE", 1)},
		{name: "missing", result: pgxmock.NewResult("DELETE", 0), errCode: CodeEntryNotFound},
		{name: "db error", err: errors.New("boom"), errCode: CodeQueryFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			exp := mock.ExpectExec(`DELETE FROM timetable_entries WHERE id = \$1`).WithArgs("01A")
			if tt.err != nil {
				exp.WillReturnError(tt.err)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := NewPostgresTimetable(mock).Remove(context.Background(), "01A")
			if tt.errCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.errCode)
		})
	}
}
