package notify

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"appliancemon/internal/errors"
)

const (
	defaultMQTTTopic    = "appliancemon/events"
	mqttConnectTimeout  = 10 * time.Second
	mqttFallbackTimeout = 5 * time.Second
	disconnectQuiesceMs = 1000
)

// MQTTConfig configures the MQTT backend.
type MQTTConfig struct {
	Broker   string
	Topic    string
	ClientID string
}

// MQTT publishes completion events as JSON to a broker topic, QoS 1.
type MQTT struct {
	client paho.Client
	topic  string
}

type mqttPayload struct {
	Appliance       string  `json:"appliance"`
	StartedAt       string  `json:"started_at"`
	FinishedAt      string  `json:"finished_at"`
	DurationSeconds float64 `json:"duration_seconds"`
	FinalWatts      float64 `json:"final_watts"`
}

// NewMQTT connects to the broker and returns the backend. The connection
// auto-reconnects; publish attempts while disconnected fail and go through
// the dispatcher's retry.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	errFactory := errors.New()

	if cfg.Broker == "" {
		return nil, errFactory.WithData(ErrMissingSetting, "mqtt broker")
	}
	if cfg.Topic == "" {
		cfg.Topic = defaultMQTTTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "appliancemon"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errFactory.New(ErrBrokerConnect)
	}
	if err := token.Error(); err != nil {
		return nil, errFactory.Wrap(ErrBrokerConnect, err)
	}

	return &MQTT{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Deliver(ctx context.Context, msg Message) error {
	errFactory := errors.New()

	payload, err := json.Marshal(mqttPayload{
		Appliance:       msg.Event.Appliance,
		StartedAt:       msg.Event.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:      msg.Event.FinishedAt.UTC().Format(time.RFC3339),
		DurationSeconds: msg.Event.Duration.Seconds(),
		FinalWatts:      msg.Event.FinalWatts,
	})
	if err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}

	wait := mqttFallbackTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}

	// QoS 1: completion notifications should survive a flaky broker link
	token := m.client.Publish(m.topic, 1, false, payload)
	if !token.WaitTimeout(wait) {
		return errFactory.New(ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return errFactory.Wrap(ErrDeliveryFailed, err)
	}

	return nil
}

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(disconnectQuiesceMs)

	return nil
}
