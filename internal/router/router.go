// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package router demultiplexes inbound envelopes to registered plugins by
// name and tags outbound payloads with the sending plugin's name.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/backyardbot/backyardbot/internal/observability"
	"github.com/backyardbot/backyardbot/internal/wire"
	"github.com/backyardbot/backyardbot/pkg/errutil"
)

var tracer = otel.Tracer("backyardbot/router")

// Transport carries encoded frames to the other side. Implementations
// return a TRANSPORT_CLOSED error once they can no longer send.
type Transport interface {
	Send(ctx context.Context, data []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, data []byte) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, data []byte) error {
	return f(ctx, data)
}

// Named is anything that can be the sender of an outbound envelope.
type Named interface {
	Name() string
}

// Sender is the outbound half of Router, handed to plugins.
type Sender interface {
	Send(ctx context.Context, payload any, sender Named) error
}

// Router routes envelopes between a Transport and a Registry.
type Router struct {
	registry  *Registry
	transport Transport
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger used for dropped envelopes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a router dispatching into registry and sending through
// transport.
func New(registry *Registry, transport Transport, opts ...Option) *Router {
	r := &Router{
		registry:  registry,
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the registry the router dispatches into.
func (r *Router) Registry() *Registry {
	return r.registry
}

// Deliver decodes raw and hands its payload to the addressed plugin.
// It fails with MALFORMED_ENVELOPE or UNKNOWN_PLUGIN and then delivers
// nothing.
func (r *Router) Deliver(ctx context.Context, raw []byte) (err error) {
	ctx, span := tracer.Start(ctx, "router.deliver",
		trace.WithAttributes(attribute.Int("envelope.size", len(raw))),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	env, err := wire.Decode(raw)
	if err != nil {
		observability.RecordDrop(observability.DropMalformed)
		return err
	}
	span.SetAttributes(attribute.String("envelope.plugin", env.PluginName))

	p, ok := r.registry.Lookup(env.PluginName)
	if !ok {
		observability.RecordDrop(observability.DropUnknownPlugin)
		return ErrUnknownPlugin(env.PluginName)
	}

	observability.RecordEnvelope(observability.DirectionInbound, env.PluginName)
	p.ReceiveData(ctx, env.Payload)
	return nil
}

// Dispatch is Deliver for the receive loop: failures are logged and the
// envelope is dropped.
func (r *Router) Dispatch(ctx context.Context, raw []byte) {
	if err := r.Deliver(ctx, raw); err != nil {
		errutil.LogWarn(r.logger, "envelope dropped", err)
	}
}

// Send wraps payload in an envelope tagged with sender's name and hands it
// to the transport. The payload is not inspected.
func (r *Router) Send(ctx context.Context, payload any, sender Named) error {
	name, err := senderName(sender)
	if err != nil {
		return err
	}

	data, err := wire.Encode(name, payload)
	if err != nil {
		return err
	}

	if err := r.transport.Send(ctx, data); err != nil {
		if errutil.Code(err) == "" {
			return ErrTransportClosed(err)
		}
		return err
	}

	observability.RecordEnvelope(observability.DirectionOutbound, name)
	return nil
}

// senderName reads sender's name. A nil sender, one whose Name panics (a
// typed nil pointer) and an empty name are all ENCODE_FAILED.
func senderName(sender Named) (name string, err error) {
	if sender == nil {
		return "", oops.Code(CodeEncodeFailed).Errorf("outbound envelope has no sender")
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = oops.Code(CodeEncodeFailed).
				With("sender", fmt.Sprintf("%T", sender)).
				Errorf("outbound sender has no usable name: %v", rec)
		}
	}()
	if name = sender.Name(); name == "" {
		return "", oops.Code(CodeEncodeFailed).Errorf("outbound sender has an empty name")
	}
	return name, nil
}

// Run dispatches frames from inbound one at a time, in channel order, until
// inbound is closed (returning nil) or ctx is done (returning ctx.Err()).
// Plugins therefore never receive data concurrently from the same Run.
func (r *Router) Run(ctx context.Context, inbound <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-inbound:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, raw)
		}
	}
}
