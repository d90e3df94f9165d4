package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password" env:"PASSWORD"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func (c *MQTTConfig) ApplyDefaults() {
	if c.Topic == "" {
		c.Topic = "quakeflow/misurations"
	}
	if c.ClientID == "" {
		c.ClientID = "quakeflow-edge"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 10 * time.Second
	}
}

type MQTTTransmitter struct {
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// DialMQTT starts connecting to the broker and returns immediately; paho
// keeps retrying in the background and reconnects after drops.
func DialMQTT(cfg MQTTConfig) (*MQTTTransmitter, error) {
	cfg.ApplyDefaults()
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	client.Connect()
	return NewMQTTTransmitter(client, cfg), nil
}

func NewMQTTTransmitter(client mqtt.Client, cfg MQTTConfig) *MQTTTransmitter {
	cfg.ApplyDefaults()
	return &MQTTTransmitter{client: client, topic: cfg.Topic, qos: cfg.QoS, timeout: cfg.PublishTimeout}
}

func (m *MQTTTransmitter) Name() string { return "mqtt" }

func (m *MQTTTransmitter) Send(ctx context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return ports.Receipt{}, fmt.Errorf("marshal payload: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ports.Receipt{}, ctx.Err()
	case <-timer.C:
		return ports.Receipt{}, ErrPublishTimeout
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return ports.Receipt{}, fmt.Errorf("mqtt publish: %w", err)
	}
	return ports.Receipt{Status: fmt.Sprintf("published qos=%d", m.qos)}, nil
}

func (m *MQTTTransmitter) Close() {
	m.client.Disconnect(250)
}

var _ ports.Transmitter = (*MQTTTransmitter)(nil)
