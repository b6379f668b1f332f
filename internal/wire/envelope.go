// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package wire defines the JSON frames exchanged between the dashboard and
// the backend, and the typed decoding applied to plugin payloads.
package wire

import (
	"bytes"
	"encoding/json"

	"github.com/samber/oops"
)

// null is the payload used when a frame carries none.
var null = json.RawMessage("null")

// Envelope is the frame sent in both directions over the socket.
// Payload is opaque to everything except the addressed plugin.
type Envelope struct {
	PluginName string          `json:"plugin_name"`
	Payload    json.RawMessage `json:"payload"`
}

// Encode serializes payload tagged with pluginName.
func Encode(pluginName string, payload any) ([]byte, error) {
	data, err := json.Marshal(struct {
		PluginName string `json:"plugin_name"`
		Payload    any    `json:"payload"`
	}{pluginName, payload})
	if err != nil {
		return nil, oops.Code(CodeEncodeFailed).
			With("plugin", pluginName).
			Wrapf(err, "encode envelope")
	}
	return data, nil
}

// Decode parses a frame. The frame must be a JSON object; a missing
// plugin_name decodes as "" and a missing payload as null.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return env, oops.Code(CodeMalformedEnvelope).
			With("size", len(raw)).
			Errorf("frame is not a JSON object")
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, oops.Code(CodeMalformedEnvelope).
			With("size", len(raw)).
			Wrapf(err, "decode envelope")
	}
	if len(env.Payload) == 0 {
		env.Payload = null
	}
	return env, nil
}

// Redirect destinations understood by the backend.
const (
	ToClient = "to_client"
	ToServer = "to_server"
)

// DebugPluginName is the plugin name that marks a frame as a Redirect.
const DebugPluginName = "debug"

// Redirect is the frame the debug plugin uses to inject a payload on
// behalf of another plugin, either back to every client or into a
// backend plugin.
type Redirect struct {
	PluginName         string          `json:"plugin_name"`
	Payload            json.RawMessage `json:"payload"`
	MessageDestination string          `json:"message_destination"`
	ReceivingPlugin    string          `json:"receiving_plugin"`
}

// EncodeRedirect builds a debug frame for receivingPlugin.
func EncodeRedirect(destination, receivingPlugin string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, oops.Code(CodeEncodeFailed).
			With("plugin", receivingPlugin).
			Wrapf(err, "encode redirect payload")
	}
	data, err := json.Marshal(Redirect{
		PluginName:         DebugPluginName,
		Payload:            body,
		MessageDestination: destination,
		ReceivingPlugin:    receivingPlugin,
	})
	if err != nil {
		return nil, oops.Code(CodeEncodeFailed).Wrapf(err, "encode redirect")
	}
	return data, nil
}

// DecodeRedirect parses a debug frame.
func DecodeRedirect(raw []byte) (Redirect, error) {
	var r Redirect
	if err := json.Unmarshal(raw, &r); err != nil {
		return Redirect{}, oops.Code(CodeMalformedEnvelope).Wrapf(err, "decode redirect")
	}
	if len(r.Payload) == 0 {
		r.Payload = null
	}
	return r, nil
}
