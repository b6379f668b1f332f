// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package wire

// Error codes returned by this package.
const (
	CodeMalformedEnvelope = "MALFORMED_ENVELOPE"
	CodeEncodeFailed      = "ENCODE_FAILED"
	CodeInvalidPayload    = "INVALID_PAYLOAD"
	CodeSchemaFailed      = "SCHEMA_FAILED"
)
