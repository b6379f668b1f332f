// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/backyardbot/backyardbot/internal/actuator"
	"github.com/backyardbot/backyardbot/internal/config"
	"github.com/backyardbot/backyardbot/internal/logging"
	"github.com/backyardbot/backyardbot/internal/plugin"
	"github.com/backyardbot/backyardbot/internal/plugins/timecontrol"
	"github.com/backyardbot/backyardbot/internal/server"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/topics"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

// serveOptions holds serve flags that are not part of the config file.
type serveOptions struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}
	defaults := config.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the backend (WebSocket hub, plugins, valves)",
		Long: `Start the backend process which accepts dashboard connections, runs the
timetable, time-control, sprinkler and debug plugins and drives the valves.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, opts, cmd, nil)
		},
	}

	cmd.Flags().String("listen", defaults.Server.Listen, "WebSocket and API listen address")
	cmd.Flags().String("ws-path", defaults.Server.WSPath, "WebSocket endpoint path")
	cmd.Flags().String("metrics-listen", defaults.Metrics.Listen, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", defaults.Log.Format, "log format (json or text)")
	cmd.Flags().String("log-level", defaults.Log.Level, "log level (debug, info, warn, error)")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default: "+config.DatabaseURLEnv+"; empty keeps the timetable in memory)")
	cmd.Flags().String("plugins-dir", "", "plugin manifests directory (default: XDG_DATA_HOME/backyardbot/plugins)")
	cmd.Flags().StringSlice("plugins", nil, "glob patterns selecting the plugins to load (default: all)")
	cmd.Flags().StringSlice("language", defaults.General.Language, "language priorities, most preferred first")
	cmd.Flags().String("mqtt-broker", "", "MQTT broker for mqtt valves")
	cmd.Flags().Bool("auto-mode", false, "start with automatic watering enabled")
	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", false, "apply database migrations before serving")

	return cmd
}

// runServeWithDeps runs the backend until a signal arrives or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg config.Config, opts *serveOptions, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.SetDefault("backyardbot", version, cfg.Log.Format, level)
	logger := slog.Default()

	logger.Info("starting backend",
		"listen", cfg.Server.Listen,
		"plugins_dir", cfg.Plugins.Dir,
		"database", cfg.Database.URL != "")

	if opts.autoMigrate && cfg.Database.URL != "" {
		if err := autoMigrate(deps, cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	timetable, closeStore, err := deps.StoreFactory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	valves, closeValves, err := deps.ValveFactory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeValves()

	singles := make([]*actuator.Single, 0, len(valves))
	for zone, valve := range valves {
		singles = append(singles, actuator.NewSingle(zone, valve, actuator.WithLogger(logger)))
	}
	bank := actuator.NewBank(logger, singles...)
	bus := topics.NewBus(0, logger)

	srv := server.New(server.Config{
		Listen:         cfg.Server.Listen,
		WSPath:         cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
	})

	builtins := server.BuiltinOptions(server.Deps{
		Sender:    srv.Router(),
		Timetable: timetable,
		Bus:       bus,
		Actuators: bank,
		TimeControl: timecontrol.Options{
			Tick:     cfg.TimeControl.Tick,
			AutoMode: cfg.TimeControl.AutoMode,
		},
	})
	managerOpts := append(builtins,
		plugin.WithEnabled(cfg.Plugins.Enabled...),
		plugin.WithLocalization(cfg.General.Language, cfg.Localization),
		plugin.WithManagerLogger(logger),
	)
	manager := plugin.NewManager(cfg.Plugins.Dir, managerOpts...)
	if err := manager.LoadAll(ctx, srv.Registry()); err != nil {
		return oops.Code("PLUGIN_LOAD_FAILED").With("dir", cfg.Plugins.Dir).Wrap(err)
	}
	srv.SetPlugins(manager)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	valveCtx, stopValves := context.WithCancel(context.WithoutCancel(ctx))
	bank.Run(valveCtx)
	defer func() {
		stopValves()
		bank.Wait()
	}()

	srvErrCh, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	go monitorServerErrors(ctx, cancel, srvErrCh, "backend")

	var obsServer ObservabilityServer
	if cfg.Metrics.Listen != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Listen, srv.Ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			stopServer(srv, logger)
			return oops.Code("METRICS_START_FAILED").With("addr", cfg.Metrics.Listen).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Backend started on " + srv.Addr())
	deps.OnStarted(srv.Addr())
	logger.Info("backend ready", "addr", srv.Addr(), "plugins", manager.ListPlugins())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopServer(srv, logger)
	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	bus.Wait()

	logger.Info("shutdown complete")
	return nil
}

func stopServer(srv *server.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		errutil.LogWarn(logger, "error stopping backend", err)
	}
}

func autoMigrate(deps *ServeDeps, databaseURL string, logger *slog.Logger) error {
	m, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			errutil.LogWarn(logger, "error closing migrator", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	version, _, err := m.Version()
	if err != nil {
		return oops.Code("AUTO_MIGRATE_FAILED").Wrap(err)
	}
	logger.Info("database migrations applied", "version", version)
	return nil
}

// openStore keeps the timetable in memory unless a database is configured.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.TimetableStore, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("no database configured, timetable is kept in memory")
		return store.NewMemoryTimetable(), func() {}, nil
	}
	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to database")
	return store.NewPostgresTimetable(pool), pool.Close, nil
}

// openValves builds the configured valves. gpio zones get a MemoryValve
// labelled with their pin.
func openValves(cfg config.Config, logger *slog.Logger) (map[int]actuator.Valve, func(), error) {
	valves := make(map[int]actuator.Valve, len(cfg.Actuators))
	closeFn := func() {}

	var client mqtt.Client
	if cfg.UsesMQTT() {
		c, err := actuator.ConnectMQTT(actuator.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, err
		}
		client = c
		closeFn = func() { client.Disconnect(250) }
	}

	for _, a := range cfg.Actuators {
		switch a.Kind {
		case config.KindMQTT:
			prefix := cfg.MQTT.TopicPrefix
			if a.Topic != "" {
				prefix = a.Topic
			}
			valves[a.Zone] = actuator.NewMQTTValve(client, prefix, a.Zone)
		default:
			valves[a.Zone] = actuator.NewMemoryValve(a.Pin, logger.With("zone", a.Zone))
		}
	}
	return valves, closeFn, nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
