// Package tfpub publishes solved calibration transforms to downstream consumers.
package tfpub

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"handeyecal/rigid"
)

// Publisher makes a transform between two frames available to other components.
type Publisher interface {
	PublishTransform(ctx context.Context, from, to string, tf rigid.Transform) error
	Close() error
}

// LogPublisher writes published transforms to a logger.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher returns a publisher that only logs.
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishTransform implements Publisher.
func (p *LogPublisher) PublishTransform(_ context.Context, from, to string, tf rigid.Transform) error {
	p.logger.Infow("publishing transform", "from", from, "to", to, "matrix", tf.Matrix())
	return nil
}

// Close implements Publisher.
func (p *LogPublisher) Close() error {
	return nil
}

// Message is the JSON payload sent for a published transform.
type Message struct {
	FrameID      string     `json:"frame_id"`
	ChildFrameID string     `json:"child_frame_id"`
	Translation  [3]float64 `json:"translation"`
	Rotation     [4]float64 `json:"rotation_xyzw"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewMessage builds the payload for tf published from one frame to another.
func NewMessage(from, to string, tf rigid.Transform, at time.Time) Message {
	t, q := tf.Translation, tf.Rotation
	return Message{
		FrameID:      from,
		ChildFrameID: to,
		Translation:  [3]float64{t.X, t.Y, t.Z},
		Rotation:     [4]float64{q.Imag, q.Jmag, q.Kmag, q.Real},
		Timestamp:    at.UTC(),
	}
}

// MQTTConfig configures an MQTT publisher.
type MQTTConfig struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos"`
}

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes transforms as retained JSON messages.
type MQTTPublisher struct {
	client mqttClient
	topic  string
	qos    byte
	logger logging.Logger
	now    func() time.Time
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg MQTTConfig, logger logging.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connecting to MQTT broker %s", cfg.Broker)
	}
	logger.Infof("connected to MQTT broker %s", cfg.Broker)
	return newMQTTPublisher(client, cfg, logger), nil
}

func newMQTTPublisher(client mqttClient, cfg MQTTConfig, logger logging.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: cfg.Topic, qos: cfg.QoS, logger: logger, now: time.Now}
}

// PublishTransform implements Publisher.
func (p *MQTTPublisher) PublishTransform(ctx context.Context, from, to string, tf rigid.Transform) error {
	payload, err := json.Marshal(NewMessage(from, to, tf, p.now()))
	if err != nil {
		return errors.Wrap(err, "encoding transform")
	}
	token := p.client.Publish(p.topic, p.qos, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", p.topic)
	}
	p.logger.Debugf("published %s -> %s to %s", from, to, p.topic)
	return nil
}

// Close implements Publisher.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
