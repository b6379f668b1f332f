// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Envelope directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Drop reasons.
const (
	DropMalformed      = "malformed"
	DropUnknownPlugin  = "unknown_plugin"
	DropQueueFull      = "queue_full"
	DropBinaryFrame    = "binary_frame"
	DropBadDestination = "unknown_destination"
)

// Package-level collectors let the router, hub and plugins record events
// without holding a Server. They are exported by every registry passed to
// RegisterMetrics.
var (
	envelopesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backyardbot_envelopes_total",
			Help: "Envelopes routed by direction and plugin name",
		},
		[]string{"direction", "plugin"},
	)
	envelopesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backyardbot_envelopes_dropped_total",
			Help: "Envelopes and frames dropped by reason",
		},
		[]string{"reason"},
	)
	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "backyardbot_ws_clients",
			Help: "Currently connected dashboard clients",
		},
	)
	wateringRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backyardbot_watering_runs_total",
			Help: "Watering tasks handed to actuators by zone",
		},
		[]string{"zone"},
	)
)

// RegisterMetrics registers the backyardbot collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(envelopesTotal, envelopesDropped, wsClients, wateringRuns)
}

// RecordEnvelope counts one routed envelope.
func RecordEnvelope(direction, plugin string) {
	envelopesTotal.WithLabelValues(direction, plugin).Inc()
}

// RecordDrop counts one dropped envelope or frame.
func RecordDrop(reason string) {
	envelopesDropped.WithLabelValues(reason).Inc()
}

// ClientConnected and ClientDisconnected track the client gauge.
func ClientConnected()    { wsClients.Inc() }
func ClientDisconnected() { wsClients.Dec() }

// RecordWateringRun counts a watering task for zone.
func RecordWateringRun(zone int) {
	wateringRuns.WithLabelValues(strconv.Itoa(zone)).Inc()
}
