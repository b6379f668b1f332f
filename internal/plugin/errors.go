// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package plugin

// Error codes returned by this package.
const (
	CodeManifestEmpty   = "MANIFEST_EMPTY"
	CodeInvalidManifest = "INVALID_MANIFEST"
	CodeSchemaInvalid   = "MANIFEST_SCHEMA_INVALID"
	CodeDirUnreadable   = "PLUGINS_DIR_UNREADABLE"
	CodeInvalidPattern  = "INVALID_ENABLE_PATTERN"
	CodeLoadFailed      = "PLUGIN_LOAD_FAILED"
)
