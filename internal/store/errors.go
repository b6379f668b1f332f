// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package store

// Error codes returned by this package.
const (
	CodeInvalidEntry  = "INVALID_ENTRY"
	CodeEntryNotFound = "ENTRY_NOT_FOUND"
	CodeQueryFailed   = "QUERY_FAILED"
	CodeConnectFailed = "DB_CONNECT_FAILED"
)
