// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package dashboard

import (
	"context"
	"log/slog"

	"github.com/backyardbot/backyardbot/internal/router"
	"github.com/backyardbot/backyardbot/internal/wire"
)

// Link is the part of a Transport the Connection needs.
type Link interface {
	router.Transport
	Inbound() <-chan []byte
	Close() error
}

// Connection owns the link to the backend and the views registered on it.
// Views receive the payloads addressed to their name and send through
// SendToBackend.
type Connection struct {
	link   Link
	router *router.Router
}

// NewConnection routes frames from link to views registered on the
// returned Connection.
func NewConnection(link Link, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	reg := router.NewRegistry(logger)
	return &Connection{
		link:   link,
		router: router.New(reg, link, router.WithLogger(logger)),
	}
}

// Register adds a view. Views with an empty name are logged and skipped.
func (c *Connection) Register(view router.Plugin) {
	c.router.Registry().Register(view)
}

// Registry exposes the registered views.
func (c *Connection) Registry() *router.Registry {
	return c.router.Registry()
}

// SendToBackend sends payload tagged with sender's name.
func (c *Connection) SendToBackend(ctx context.Context, payload any, sender router.Named) error {
	return c.router.Send(ctx, payload, sender)
}

// SendCommand sends {command, payload} tagged with sender's name.
func (c *Connection) SendCommand(ctx context.Context, sender router.Named, command string, payload any) error {
	cmd, err := wire.NewCommand(command, payload)
	if err != nil {
		return err
	}
	return c.SendToBackend(ctx, cmd, sender)
}

// SendRedirect sends a debug frame asking the backend to deliver payload
// to receivingPlugin, either on the server or back to every client.
func (c *Connection) SendRedirect(ctx context.Context, destination, receivingPlugin string, payload any) error {
	data, err := wire.EncodeRedirect(destination, receivingPlugin, payload)
	if err != nil {
		return err
	}
	return c.link.Send(ctx, data)
}

// Run dispatches inbound frames to views until the link ends or ctx is
// done.
func (c *Connection) Run(ctx context.Context) error {
	return c.router.Run(ctx, c.link.Inbound())
}

// Close closes the link.
func (c *Connection) Close() error {
	return c.link.Close()
}
