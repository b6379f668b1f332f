// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package debug

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlugin_LogsPayload(t *testing.T) {
	var logs bytes.Buffer
	p := New(slog.New(slog.NewJSONHandler(&logs, nil)))

	assert.Equal(t, "debug", p.Name())
	p.ReceiveData(context.Background(), json.RawMessage(`{"hello":"world"}`))
	p.ReceiveData(context.Background(), json.RawMessage(`null`))

	assert.Equal(t, int64(2), p.Received())
	assert.Contains(t, logs.String(), "debug plugin received data")
	assert.Contains(t, logs.String(), `hello`)
}
