// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyardbot/backyardbot/internal/config"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	pending []uint
	upErr   error

	calls  []string
	steps  int
	closed bool
}

func (m *fakeMigrator) Up() error {
	m.calls = append(m.calls, "up")
	return m.upErr
}

func (m *fakeMigrator) Down() error {
	m.calls = append(m.calls, "down")
	return nil
}

func (m *fakeMigrator) Steps(n int) error {
	m.calls = append(m.calls, "steps")
	m.steps = n
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, m.dirty, nil }

func (m *fakeMigrator) Pending() ([]uint, error) { return m.pending, nil }

func (m *fakeMigrator) Close() error {
	m.closed = true
	return nil
}

func useMigrator(t *testing.T, m *fakeMigrator) *string {
	t.Helper()
	var gotURL string
	orig := migratorFactory
	migratorFactory = func(databaseURL string) (Migrator, error) {
		gotURL = databaseURL
		return m, nil
	}
	t.Cleanup(func() { migratorFactory = orig })
	return &gotURL
}

func runMigrateCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"migrate"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrate_NoDatabase(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.DatabaseURLEnv, "")

	_, err := runMigrateCmd(t, "up")
	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}

func TestMigrate_Up(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1, 2}}
	gotURL := useMigrator(t, m)

	out, err := runMigrateCmd(t, "up", "--database-url", "postgres://db/garden")
	require.NoError(t, err)

	assert.Equal(t, "postgres://db/garden", *gotURL)
	assert.Equal(t, []string{"up"}, m.calls)
	assert.True(t, m.closed)
	assert.Contains(t, out, "Applying 2 migration(s)")
}

func TestMigrate_UpNothingPending(t *testing.T) {
	m := &fakeMigrator{}
	useMigrator(t, m)

	out, err := runMigrateCmd(t, "up", "--database-url", "postgres://db/garden")
	require.NoError(t, err)
	assert.Empty(t, m.calls)
	assert.Contains(t, out, "No pending migrations")
}

func TestMigrate_UpUsesEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.DatabaseURLEnv, "postgres://env/garden")
	m := &fakeMigrator{pending: []uint{1}}
	gotURL := useMigrator(t, m)

	_, err := runMigrateCmd(t, "up")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/garden", *gotURL)
}

func TestMigrate_UpFailure(t *testing.T) {
	m := &fakeMigrator{pending: []uint{1}, upErr: errors.New("boom")}
	useMigrator(t, m)

	_, err := runMigrateCmd(t, "up", "--database-url", "postgres://db/garden")
	require.Error(t, err)
	assert.True(t, m.closed)
}

func TestMigrate_Down(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantSteps int
	}{
		{name: "all", args: nil, wantCalls: []string{"down"}},
		{name: "two steps", args: []string{"2"}, wantCalls: []string{"steps"}, wantSteps: -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMigrator{}
			useMigrator(t, m)

			args := append([]string{"down", "--database-url", "postgres://db/garden"}, tt.args...)
			out, err := runMigrateCmd(t, args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, m.calls)
			assert.Equal(t, tt.wantSteps, m.steps)
			assert.Contains(t, out, "Rollback completed")
		})
	}
}

func TestMigrate_Version(t *testing.T) {
	m := &fakeMigrator{version: 1, dirty: true, pending: []uint{2}}
	useMigrator(t, m)

	out, err := runMigrateCmd(t, "version", "--database-url", "postgres://db/garden")
	require.NoError(t, err)
	assert.Contains(t, out, "version 1 (dirty), 1 pending")
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "3", want: 3},
		{input: "0", wantErr: true},
		{input: "-1", wantErr: true},
		{input: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseSteps(tt.input)
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "INVALID_STEPS")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
