// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

//go:build tools

// Package main pins the test frameworks used only by integration suites
// to go.mod.
package main

import (
	_ "github.com/onsi/ginkgo/v2"
	_ "github.com/onsi/gomega"
)
