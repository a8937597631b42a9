package emitter

import (
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTMirror publishes every emitted line to an MQTT topic so fleet
// consumers can observe the event stream without tapping the sidecar's
// stdout.
type MQTTMirror struct {
	client mqtt.Client
	topic  string
}

// MQTTConfig configures the optional event mirror.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// NewMQTTMirror connects to the broker and returns a mirror. The client
// auto-reconnects; publishes while disconnected fail and are only logged.
func NewMQTTMirror(cfg MQTTConfig) (*MQTTMirror, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("mqtt mirror connected", "broker", cfg.Broker, "topic", cfg.Topic)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("mqtt mirror connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return &MQTTMirror{client: client, topic: cfg.Topic}, nil
}

// Publish implements Mirror.
func (m *MQTTMirror) Publish(line []byte) error {
	token := m.client.Publish(m.topic, 0, false, line)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close implements Mirror.
func (m *MQTTMirror) Close() error {
	m.client.Disconnect(250)
	return nil
}
