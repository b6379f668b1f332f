// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package errutil holds helpers for logging and inspecting oops errors.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Oops errors contribute their code and
// context as attributes; extra attributes are appended after them.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(logger, slog.LevelError, msg, err, attrs...)
}

// LogWarn is LogError for conditions the caller recovers from, such as a
// dropped message.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(logger, slog.LevelWarn, msg, err, attrs...)
}

func logAt(logger *slog.Logger, level slog.Level, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	fields := []any{"error", errString(err)}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
	}
	fields = append(fields, attrs...)
	logger.Log(context.Background(), level, msg, fields...)
}

// Code returns the oops code attached to err, or "" when there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code := oopsErr.Code()
	if code == nil {
		return ""
	}
	if s, ok := code.(string); ok {
		return s
	}
	return fmt.Sprint(code)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
