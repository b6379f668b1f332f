// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Backyardbot Contributors

// Package actuator drives the valves that water each zone.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/samber/oops"
)

// Valve opens and closes the water supply of one zone.
type Valve interface {
	Set(ctx context.Context, on bool) error
	Active() bool
}

// MemoryValve only records its state. It stands in for a GPIO pin on
// machines without one.
type MemoryValve struct {
	pin    int
	logger *slog.Logger

	mu       sync.Mutex
	on       bool
	switches int
}

// NewMemoryValve returns a closed valve labelled with pin.
func NewMemoryValve(pin int, logger *slog.Logger) *MemoryValve {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryValve{pin: pin, logger: logger}
}

// Set implements Valve.
func (v *MemoryValve) Set(_ context.Context, on bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.on != on {
		v.switches++
	}
	v.on = on
	v.logger.Debug("gpio set", "pin", v.pin, "on", on)
	return nil
}

// Active implements Valve.
func (v *MemoryValve) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.on
}

// Switches counts state changes since creation.
func (v *MemoryValve) Switches() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.switches
}

// MQTT payloads published by MQTTValve.
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// MQTTValve switches a relay by publishing ON/OFF to
// <prefix>/zone/<zone>/set. Messages are retained so a relay that
// reconnects picks up the current state.
type MQTTValve struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu sync.Mutex
	on bool
}

// ZoneTopic returns the command topic for zone under prefix.
func ZoneTopic(prefix string, zone int) string {
	return fmt.Sprintf("%s/zone/%d/set", prefix, zone)
}

// NewMQTTValve publishes through client. The valve starts closed.
func NewMQTTValve(client mqtt.Client, prefix string, zone int) *MQTTValve {
	return &MQTTValve{client: client, topic: ZoneTopic(prefix, zone), qos: 1}
}

// Topic returns the command topic.
func (v *MQTTValve) Topic() string { return v.topic }

// Set implements Valve. The state only changes once the broker accepted
// the publication.
func (v *MQTTValve) Set(ctx context.Context, on bool) error {
	payload := PayloadOff
	if on {
		payload = PayloadOn
	}

	token := v.client.Publish(v.topic, v.qos, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return oops.Code("VALVE_TIMEOUT").With("topic", v.topic).Wrap(ctx.Err())
	}
	if err := token.Error(); err != nil {
		return oops.Code("VALVE_PUBLISH_FAILED").With("topic", v.topic).With("payload", payload).Wrap(err)
	}

	v.mu.Lock()
	v.on = on
	v.mu.Unlock()
	return nil
}

// Active implements Valve.
func (v *MQTTValve) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.on
}

// MQTTOptions configures ConnectMQTT.
type MQTTOptions struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration
	Logger         *slog.Logger
}

// ConnectMQTT connects a paho client to the broker.
func ConnectMQTT(opts MQTTOptions) (mqtt.Client, error) {
	if opts.Broker == "" {
		return nil, oops.Code("MQTT_CONFIG_INVALID").Errorf("mqtt broker address is required")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(opts.Broker)
	if opts.ClientID != "" {
		co.SetClientID(opts.ClientID)
	}
	co.SetAutoReconnect(true)
	co.SetConnectTimeout(opts.ConnectTimeout)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "broker", opts.Broker, "error", err)
	})
	co.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting", "broker", opts.Broker)
	})

	client := mqtt.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, oops.Code("MQTT_CONNECT_FAILED").With("broker", opts.Broker).Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, oops.Code("MQTT_CONNECT_FAILED").With("broker", opts.Broker).Wrap(err)
	}
	logger.Info("mqtt connected", "broker", opts.Broker)
	return client, nil
}
