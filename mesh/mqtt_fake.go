package mesh

import (
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FakeToken is a completed mqtt.Token.
type FakeToken struct {
	err error
}

func (t *FakeToken) Wait() bool                     { return true }
func (t *FakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *FakeToken) Error() error                   { return t.err }

func (t *FakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Published is a message recorded by FakeClient.
type Published struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// FakeClient is an in-memory mqtt.Client. It records publishes and
// delivers injected messages to subscribers whose filter matches,
// including + and # wildcards.
type FakeClient struct {
	mu        sync.RWMutex
	connected bool
	onConnect mqtt.OnConnectHandler
	routes    map[string]mqtt.MessageHandler
	published []Published

	ConnectErr   error
	PublishErr   error
	SubscribeErr error
}

// NewFakeClient returns a disconnected fake. onConnect, if set, runs
// synchronously on Connect.
func NewFakeClient(onConnect mqtt.OnConnectHandler) *FakeClient {
	return &FakeClient{onConnect: onConnect, routes: make(map[string]mqtt.MessageHandler)}
}

func (c *FakeClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *FakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *FakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	if c.ConnectErr != nil {
		err := c.ConnectErr
		c.mu.Unlock()
		return &FakeToken{err: err}
	}
	c.connected = true
	cb := c.onConnect
	c.mu.Unlock()
	if cb != nil {
		cb(c)
	}
	return &FakeToken{}
}

func (c *FakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &FakeToken{err: mqtt.ErrNotConnected}
	}
	if c.PublishErr != nil {
		return &FakeToken{err: c.PublishErr}
	}
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	}
	c.published = append(c.published, Published{Topic: topic, Payload: b, QoS: qos, Retain: retained})
	return &FakeToken{}
}

func (c *FakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	return c.SubscribeMultiple(map[string]byte{topic: 0}, callback)
}

func (c *FakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &FakeToken{err: mqtt.ErrNotConnected}
	}
	if c.SubscribeErr != nil {
		return &FakeToken{err: c.SubscribeErr}
	}
	for f := range filters {
		c.routes[f] = callback
	}
	return &FakeToken{}
}

func (c *FakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.routes, t)
	}
	return &FakeToken{}
}

func (c *FakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[topic] = callback
}

func (c *FakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Deliver injects a message and returns how many handlers received it.
func (c *FakeClient) Deliver(topic string, payload []byte) int {
	c.mu.RLock()
	var handlers []mqtt.MessageHandler
	for f, h := range c.routes {
		if topicMatches(f, topic) {
			handlers = append(handlers, h)
		}
	}
	c.mu.RUnlock()

	msg := &fakeMessage{topic: topic, payload: payload}
	for _, h := range handlers {
		h(c, msg)
	}
	return len(handlers)
}

// Messages returns a copy of everything published.
func (c *FakeClient) Messages() []Published {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Published(nil), c.published...)
}

// Retained returns the last retained payload per topic, as a broker would
// hand it to a new subscriber.
func (c *FakeClient) Retained() map[string][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]byte)
	for _, p := range c.published {
		if p.Retain {
			out[p.Topic] = p.Payload
		}
	}
	return out
}

// topicMatches implements MQTT filter matching.
func topicMatches(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return true
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// NewFakeMQTTClient returns an MQTTClient backed by a FakeClient. Connecting
// it subscribes the configured vacuums as a real client would.
func NewFakeMQTTClient(config *Config, onMap MapHandler) (*MQTTClient, *FakeClient) {
	c := NewMQTTClientWith(nil, config, onMap)
	fake := NewFakeClient(c.subscribe)
	c.client = fake
	return c, fake
}
