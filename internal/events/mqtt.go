package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig selects the broker and topic for simulation events.
type MQTTConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topic    string        `yaml:"topic"`
	QoS      byte          `yaml:"qos"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MQTTPublisher publishes each event synchronously on an mqtt.Client.
type MQTTPublisher struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher connects to cfg.Broker.
func NewMQTTPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	broker := strings.TrimSpace(cfg.Broker)
	if broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "quakesim"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)
	client := mqtt.NewClient(opts)

	p := NewMQTTPublisherWithClient(client, cfg)
	token := client.Connect()
	if !token.WaitTimeout(p.timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return p, nil
}

// NewMQTTPublisherWithClient wraps an existing, connected client.
func NewMQTTPublisherWithClient(client mqtt.Client, cfg MQTTConfig) *MQTTPublisher {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = "quakesim/" + strings.ReplaceAll(TopicSimulationCompleted, ".", "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, topic: topic, qos: cfg.QoS, timeout: timeout}
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Topic returns the topic events are published on.
func (p *MQTTPublisher) Topic() string { return p.topic }

// Publish sends evt and waits for the broker acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, evt SimulationCompleted) error {
	_, payload, err := evt.Encode()
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("mqtt publish to %s timed out", p.topic)
	}
	return token.Error()
}

// Close disconnects with a short quiesce period.
func (p *MQTTPublisher) Close() error {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	return nil
}
