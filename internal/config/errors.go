// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package config

// Error codes returned by the config package.
const (
	CodeReadFailed   = "CONFIG_READ_FAILED"
	CodeDecodeFailed = "CONFIG_DECODE_FAILED"
	CodeInvalid      = "CONFIG_INVALID"
)
