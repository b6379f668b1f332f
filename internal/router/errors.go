// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package router

import (
	"github.com/samber/oops"

	"github.com/backyardbot/backyardbot/internal/wire"
)

// Error codes returned by the router.
const (
	CodeMalformedEnvelope = wire.CodeMalformedEnvelope
	CodeUnknownPlugin     = "UNKNOWN_PLUGIN"
	CodeEncodeFailed      = wire.CodeEncodeFailed
	CodeTransportClosed   = "TRANSPORT_CLOSED"
)

// ErrUnknownPlugin reports an envelope addressed to an unregistered name.
func ErrUnknownPlugin(name string) error {
	return oops.Code(CodeUnknownPlugin).
		With("plugin", name).
		Errorf("no plugin registered as %q", name)
}

// ErrTransportClosed is returned by transports after close or failure.
func ErrTransportClosed(cause error) error {
	b := oops.Code(CodeTransportClosed)
	if cause != nil {
		return b.Wrapf(cause, "transport closed")
	}
	return b.Errorf("transport closed")
}
