// internal/ingest/mqtt.go
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

const (
	SourceMQTT = "mqtt"

	mqttDisconnectQuiesce = 250 // ms
)

type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTTSource subscribes to a broker topic; every message is one JSON reading.
type MQTTSource struct {
	opts      MQTTOptions
	logger    *zap.Logger
	newClient func(*mqtt.ClientOptions) mqtt.Client
}

func NewMQTTSource(opts MQTTOptions, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{opts: opts, logger: logger, newClient: mqtt.NewClient}
}

func (s *MQTTSource) Name() string { return SourceMQTT }

func (s *MQTTSource) clientOptions() *mqtt.ClientOptions {
	o := mqtt.NewClientOptions()
	o.AddBroker(s.opts.Broker)
	o.SetClientID(s.opts.ClientID)
	if s.opts.Username != "" {
		o.SetUsername(s.opts.Username)
	}
	if s.opts.Password != "" {
		o.SetPassword(s.opts.Password)
	}
	o.SetAutoReconnect(true)
	o.SetCleanSession(true)
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn("MQTT connection lost", zap.Error(err))
	})
	return o
}

// waitToken waits for t until ctx is done.
func waitToken(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe connects to the broker and subscribes to the configured topic.
func (s *MQTTSource) Subscribe(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error) {
	client := s.newClient(s.clientOptions())
	if err := waitToken(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	if err := waitToken(ctx, client.Subscribe(s.opts.Topic, s.opts.QoS, s.messageHandler(onInsert))); err != nil {
		client.Disconnect(mqttDisconnectQuiesce)
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", s.opts.Topic, err)
	}
	s.logger.Info("MQTT subscribed", zap.String("broker", s.opts.Broker), zap.String("topic", s.opts.Topic))

	stop := context.AfterFunc(ctx, func() { client.Disconnect(mqttDisconnectQuiesce) })
	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			t := client.Unsubscribe(s.opts.Topic)
			if !t.WaitTimeout(time.Second) || t.Error() != nil {
				s.logger.Warn("MQTT unsubscribe did not complete", zap.Error(t.Error()))
			}
			client.Disconnect(mqttDisconnectQuiesce)
		})
	}, nil
}

func (s *MQTTSource) messageHandler(onInsert func(data.Reading)) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		r, err := s.decode(msg)
		if err != nil {
			// keep consuming; one bad payload must not stop the feed
			s.logger.Warn("Dropping MQTT message", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		onInsert(r)
	}
}

func (s *MQTTSource) decode(msg mqtt.Message) (data.Reading, error) {
	r, err := data.Parse(msg.Payload(), SourceMQTT)
	if err != nil {
		return data.Reading{}, err
	}
	if r.DeviceID == "" {
		r.DeviceID = deviceFromTopic(msg.Topic())
	}
	return *r, nil
}

// deviceFromTopic takes the second level of topics shaped like sensors/<device>/readings.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
