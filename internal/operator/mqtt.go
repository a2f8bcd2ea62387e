package operator

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"PicarNav/internal/model"
)

// MQTT bridges a broker to the command queue: commands arrive on the
// command topic and tick telemetry is published on the telemetry topic.
type MQTT struct {
	cfg    model.MQTTConfig
	queue  *Queue
	logger *slog.Logger
	client mqtt.Client

	connected atomic.Bool
	received  atomic.Uint64
	rejected  atomic.Uint64
}

// NewMQTT creates an unconnected bridge.
func NewMQTT(cfg model.MQTTConfig, queue *Queue, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{cfg: cfg, queue: queue, logger: logger.With("component", "mqtt")}
}

// Connect dials the broker and subscribes to the command topic. The
// subscription is renewed on every reconnect.
func (m *MQTT) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", m.cfg.Broker))
	opts.SetClientID(m.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(c mqtt.Client) {
		m.connected.Store(true)
		m.logger.Info("mqtt connection established", "broker", m.cfg.Broker, "client_id", m.cfg.ClientID)
		tok := c.Subscribe(m.cfg.CommandTopic, m.cfg.QoS, m.handle)
		if !tok.WaitTimeout(5 * time.Second) {
			m.logger.Error("mqtt subscribe timeout", "topic", m.cfg.CommandTopic)
			return
		}
		if err := tok.Error(); err != nil {
			m.logger.Error("mqtt subscribe failed", "topic", m.cfg.CommandTopic, "err", err)
		}
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		m.connected.Store(false)
		m.logger.Warn("mqtt connection lost, will auto-reconnect", "err", err, "broker", m.cfg.Broker)
	}

	m.client = mqtt.NewClient(opts)
	m.logger.Info("connecting to mqtt broker", "broker", m.cfg.Broker)
	tok := m.client.Connect()
	if !tok.WaitTimeout(5 * time.Second) {
		return errors.New("mqtt connection timeout")
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	return nil
}

// handle decodes a command message and queues it.
func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	m.received.Add(1)
	cmd, err := DecodeCommand(msg.Payload())
	if err != nil {
		m.rejected.Add(1)
		m.logger.Warn("invalid mqtt command", "topic", msg.Topic(), "err", err)
		return
	}
	cmd, err = m.queue.Submit(cmd, "mqtt")
	if err != nil {
		m.rejected.Add(1)
		m.logger.Warn("command queue full, dropping command", "command", cmd.String())
		return
	}
	m.logger.Info("command queued", "id", cmd.ID, "command", cmd.String(), "origin", "mqtt")
}

// Name implements the telemetry sink interface.
func (m *MQTT) Name() string { return "mqtt" }

// Publish sends t as JSON on the telemetry topic.
func (m *MQTT) Publish(t model.Telemetry) error {
	if m.client == nil || !m.connected.Load() {
		return errors.New("mqtt not connected")
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	tok := m.client.Publish(m.cfg.TelemetryTopic, m.cfg.QoS, false, payload)
	if !tok.WaitTimeout(2 * time.Second) {
		return errors.New("publish timeout")
	}
	return tok.Error()
}

// Received and Rejected count command messages.
func (m *MQTT) Received() uint64 { return m.received.Load() }
func (m *MQTT) Rejected() uint64 { return m.rejected.Load() }

// Close unsubscribes and disconnects.
func (m *MQTT) Close() {
	if m.client == nil || !m.client.IsConnected() {
		return
	}
	m.client.Unsubscribe(m.cfg.CommandTopic).WaitTimeout(time.Second)
	m.client.Disconnect(250)
	m.connected.Store(false)
	m.logger.Info("mqtt disconnected")
}
