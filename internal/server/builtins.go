// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package server

import (
	"context"

	"github.com/backyardbot/backyardbot/internal/actuator"
	"github.com/backyardbot/backyardbot/internal/plugin"
	"github.com/backyardbot/backyardbot/internal/plugins/debug"
	"github.com/backyardbot/backyardbot/internal/plugins/sprinkler"
	"github.com/backyardbot/backyardbot/internal/plugins/timecontrol"
	"github.com/backyardbot/backyardbot/internal/plugins/timetable"
	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/topics"
)

// BuiltinVersion is the manifest version of the compiled-in plugins.
const BuiltinVersion = "1.0.0"

// Deps is what the compiled-in plugins are built from.
type Deps struct {
	Sender      router.Sender
	Timetable   store.TimetableStore
	Bus         *topics.Bus
	Actuators   *actuator.Bank
	TimeControl timecontrol.Options
}

// Builtins returns the compiled-in backend plugins.
func Builtins(deps Deps) []plugin.Builtin {
	manifest := func(name string) plugin.Manifest {
		return plugin.Manifest{Name: name, Version: BuiltinVersion}
	}
	return []plugin.Builtin{
		{
			Manifest: manifest(timetable.Name),
			Factory: func(_ context.Context, env plugin.Env) (router.Plugin, error) {
				return timetable.New(deps.Sender, deps.Timetable, deps.Bus, env.Logger), nil
			},
		},
		{
			Manifest: manifest(timecontrol.Name),
			Factory: func(ctx context.Context, env plugin.Env) (router.Plugin, error) {
				opts := deps.TimeControl
				opts.Logger = env.Logger
				p := timecontrol.New(deps.Sender, deps.Timetable, deps.Bus, opts)
				if err := p.Load(ctx); err != nil {
					return nil, err
				}
				return p, nil
			},
		},
		{
			Manifest: manifest(sprinkler.Name),
			Factory: func(_ context.Context, env plugin.Env) (router.Plugin, error) {
				return sprinkler.New(deps.Sender, deps.Actuators, deps.Bus, env.Logger), nil
			},
		},
		{
			Manifest: manifest(debug.Name),
			Factory: func(_ context.Context, env plugin.Env) (router.Plugin, error) {
				return debug.New(env.Logger), nil
			},
		},
	}
}

// BuiltinOptions turns Builtins into manager options.
func BuiltinOptions(deps Deps) []plugin.ManagerOption {
	builtins := Builtins(deps)
	opts := make([]plugin.ManagerOption, 0, len(builtins))
	for _, b := range builtins {
		opts = append(opts, plugin.WithBuiltin(b))
	}
	return opts
}
