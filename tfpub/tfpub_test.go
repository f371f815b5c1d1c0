package tfpub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/test"

	"handeyecal/rigid"
)

type doneToken struct {
	err error
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }

func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	err          error
	sent         []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return &doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestMQTTPublisher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	client := &fakeClient{}
	p := newMQTTPublisher(client, MQTTConfig{Topic: "calibration/camera", QoS: 1}, logger)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	tf := rigid.FromAxisAngle(r3.Vector{Z: 1}, 0.5, r3.Vector{X: 0.1, Y: 0.2, Z: 0.3})
	test.That(t, p.PublishTransform(context.Background(), "base", "camera", tf), test.ShouldBeNil)
	test.That(t, client.sent, test.ShouldHaveLength, 1)
	test.That(t, client.sent[0].topic, test.ShouldEqual, "calibration/camera")
	test.That(t, client.sent[0].qos, test.ShouldEqual, byte(1))
	test.That(t, client.sent[0].retained, test.ShouldBeTrue)

	var msg Message
	test.That(t, json.Unmarshal(client.sent[0].payload, &msg), test.ShouldBeNil)
	test.That(t, msg, test.ShouldResemble, NewMessage("base", "camera", tf, at))
	test.That(t, msg.Rotation[3], test.ShouldAlmostEqual, tf.Rotation.Real)
	test.That(t, msg.Translation[1], test.ShouldEqual, 0.2)

	client.err = errors.New("not connected")
	err := p.PublishTransform(context.Background(), "base", "camera", tf)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not connected")

	test.That(t, p.Close(), test.ShouldBeNil)
	test.That(t, client.disconnected, test.ShouldBeTrue)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logging.NewTestLogger(t))
	test.That(t, p.PublishTransform(context.Background(), "eef", "camera", rigid.Identity()), test.ShouldBeNil)
	test.That(t, p.Close(), test.ShouldBeNil)
}
