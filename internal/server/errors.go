// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package server

// Error codes returned by this package.
const (
	CodeUnknownDestination = "UNKNOWN_DESTINATION"
	CodeAlreadyRunning     = "SERVER_ALREADY_RUNNING"
	CodeListenFailed       = "SERVER_LISTEN_FAILED"
)
