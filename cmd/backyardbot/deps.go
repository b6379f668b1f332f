// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/backyardbot/backyardbot/internal/actuator"
	"github.com/backyardbot/backyardbot/internal/config"
	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the timetable store. The returned func releases it.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.TimetableStore, func(), error)

	// ValveFactory builds one valve per configured zone.
	// Default: openValves
	ValveFactory func(cfg config.Config, logger *slog.Logger) (map[int]actuator.Valve, func(), error)

	// MigratorFactory opens a migrator for --auto-migrate.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// OnStarted is called with the bound listen address once serving.
	OnStarted func(addr string)
}

// Migrator is the part of store.Migrator the commands drive.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Pending() ([]uint, error)
	Close() error
}

// ObservabilityServer is the part of observability.Server serve uses.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.ValveFactory == nil {
		out.ValveFactory = openValves
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = migratorFactory
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			srv := observability.NewServer(addr, ready)
			srv.SetLogger(slog.Default().With("component", "observability"))
			return srv
		}
	}
	if out.OnStarted == nil {
		out.OnStarted = func(string) {}
	}
	return &out
}
