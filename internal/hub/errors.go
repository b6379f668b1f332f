// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package hub

// Error codes returned by this package.
const (
	CodeUnknownClient = "UNKNOWN_CLIENT"
	CodeQueueFull     = "CLIENT_QUEUE_FULL"
	CodeHubClosed     = "HUB_CLOSED"
)
