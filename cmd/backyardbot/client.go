// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/backyardbot/backyardbot/internal/dashboard"
	"github.com/backyardbot/backyardbot/internal/dashboard/views"
	"github.com/backyardbot/backyardbot/internal/logging"
	"github.com/backyardbot/backyardbot/internal/schedule"
	"github.com/backyardbot/backyardbot/internal/store"
	"github.com/backyardbot/backyardbot/internal/wire"
)

const defaultHost = "localhost:8080"

// clientOptions locates the backend for the dashboard commands.
type clientOptions struct {
	host     string
	tls      bool
	path     string
	logLevel string
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.host, "host", defaultHost, "backend host[:port]")
	cmd.Flags().BoolVar(&o.tls, "tls", false, "connect with wss://")
	cmd.Flags().StringVar(&o.path, "path", dashboard.DefaultPath, "WebSocket endpoint path")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func (o *clientOptions) logger(w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.SetupLevel("backyardbot-dashboard", version, "text", level, w), nil
}

// connect dials the backend and returns a connection with every view
// registered on it.
func (o *clientOptions) connect(ctx context.Context, out io.Writer, status dashboard.StatusIndicator, logger *slog.Logger) (*dashboard.Connection, *views.Set, error) {
	tr, err := dashboard.Dial(ctx, o.host, dashboard.DialOptions{
		TLS:    o.tls,
		Path:   o.path,
		Status: status,
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	conn := dashboard.NewConnection(tr, logger)
	set := views.NewSet(out, conn, logger)
	for _, v := range set.All() {
		conn.Register(v)
	}
	return conn, set, nil
}

// NewWatchCmd creates the watch subcommand.
func NewWatchCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print what the backend plugins report",
		Long: `Connect to the backend and print the connection status and one line per
plugin update until the connection closes or the command is interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func runWatch(ctx context.Context, out, errOut io.Writer, opts *clientOptions) error {
	logger, err := opts.logger(errOut)
	if err != nil {
		return err
	}
	conn, _, err := opts.connect(ctx, out, dashboard.NewLineIndicator(out), logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// NewSendCmd creates the send subcommand.
func NewSendCmd() *cobra.Command {
	opts := &clientOptions{}
	var plugin, command, payload, destination string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one command to a backend plugin",
		Long: `Send {"command": ..., "payload": ...} to a backend plugin as if it came from
the dashboard view of the same name. With --destination the frame is sent
through the debug plugin instead, either to the backend plugin (to_server)
or back to every dashboard (to_client).`,
		Example: `  backyardbot send --plugin timecontrol --command toggle_auto_mode --payload true
  backyardbot send --plugin sprinklerinterface --command start_watering --payload '{"zones":[1],"durations":[60]}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSend(cmd.Context(), cmd.ErrOrStderr(), opts, plugin, command, payload, destination)
		},
	}
	opts.register(cmd)
	cmd.Flags().StringVar(&plugin, "plugin", "", "plugin name")
	cmd.Flags().StringVar(&command, "command", "", "command name")
	cmd.Flags().StringVar(&payload, "payload", "null", "command payload as JSON")
	cmd.Flags().StringVar(&destination, "destination", "", "redirect through the debug plugin (to_client or to_server)")
	_ = cmd.MarkFlagRequired("plugin")
	_ = cmd.MarkFlagRequired("command")
	return cmd
}

// named tags frames with a plugin name that has no local view.
type named string

func (n named) Name() string { return string(n) }

func runSend(ctx context.Context, errOut io.Writer, opts *clientOptions, plugin, command, payload, destination string) error {
	if !json.Valid([]byte(payload)) {
		return oops.Code(wire.CodeInvalidPayload).With("payload", payload).Errorf("--payload is not valid JSON")
	}
	switch destination {
	case "", wire.ToClient, wire.ToServer:
	default:
		return oops.Code("INVALID_DESTINATION").
			With("destination", destination).
			Errorf("--destination must be %s or %s", wire.ToClient, wire.ToServer)
	}

	logger, err := opts.logger(errOut)
	if err != nil {
		return err
	}
	conn, _, err := opts.connect(ctx, io.Discard, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if destination == "" {
		return conn.SendCommand(ctx, named(plugin), command, json.RawMessage(payload))
	}
	cmd, err := wire.NewCommand(command, json.RawMessage(payload))
	if err != nil {
		return err
	}
	return conn.SendRedirect(ctx, destination, plugin, cmd)
}

// NewTimetableCmd creates the timetable subcommand group.
func NewTimetableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timetable",
		Short: "Edit the watering timetable",
	}
	cmd.AddCommand(newTimetableAddCmd())
	cmd.AddCommand(newTimetableRemoveCmd())
	return cmd
}

func newTimetableAddCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "add ENTRY...",
		Short: "Add timetable entries",
		Long: `Add one entry per argument. An entry names the day (mon..sun or daily),
the start time, the zones and how long to water them.`,
		Example: `  backyardbot timetable add "mon 06:30 zones 1,2 for 10m" "daily 19:00 zone 3 for 90s"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimetableAdd(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, args)
		},
	}
	opts.register(cmd)
	return cmd
}

func runTimetableAdd(ctx context.Context, out, errOut io.Writer, opts *clientOptions, args []string) error {
	entries := make([]store.Entry, 0, len(args))
	for _, arg := range args {
		e, err := schedule.Parse(arg)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}

	logger, err := opts.logger(errOut)
	if err != nil {
		return err
	}
	conn, set, err := opts.connect(ctx, io.Discard, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := set.Timetable.AddEntries(ctx, entries...); err != nil {
		return err
	}
	for _, e := range entries {
		_, _ = io.WriteString(out, "added "+schedule.Describe(e)+"\n")
	}
	return nil
}

func newTimetableRemoveCmd() *cobra.Command {
	opts := &clientOptions{}
	cmd := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a timetable entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			conn, set, err := opts.connect(cmd.Context(), io.Discard, nil, logger)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			return set.Timetable.RemoveEntry(cmd.Context(), args[0])
		},
	}
	opts.register(cmd)
	return cmd
}
