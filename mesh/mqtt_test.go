package mesh

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rockyTopic = "valetudo/rocky7/MapData/map-data"

func testMQTTConfig() *Config {
	c := DefaultConfig()
	c.Vacuums = []VacuumConfig{
		{ID: "rocky7", Topic: rockyTopic},
		{ID: "api-only", ApiURL: new(string)},
	}
	return c
}

// connectedFake wires an MQTTClient to a FakeClient and connects it.
func connectedFake(t *testing.T, onMap MapHandler) (*MQTTClient, *FakeClient) {
	t.Helper()
	c, fake := NewFakeMQTTClient(testMQTTConfig(), onMap)
	require.NoError(t, c.Connect(context.Background()))
	return c, fake
}

func TestNewMQTTClient_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	c, err := NewMQTTClient(testMQTTConfig(), nil)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestNewMQTTClient_NoVacuums(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	_, err := NewMQTTClient(DefaultConfig(), nil)
	assert.Error(t, err)
}

func TestNewMQTTClient_EnvBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker.test:1883")
	assert.Equal(t, "tcp://broker.test:1883", BrokerURL(&Config{MQTT: MQTTConfig{Broker: "tcp://config:1883"}}))

	c, err := NewMQTTClient(testMQTTConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.IsConnected())
}

func TestMQTTClient_SubscribesOnConnect(t *testing.T) {
	c, _ := connectedFake(t, nil)
	assert.True(t, c.IsConnected())

	subs := c.Subscriptions()
	sort.Strings(subs)
	assert.Equal(t, []string{rockyTopic, "valetudo/rocky7/StatusStateAttribute/status"}, subs)
}

func TestMQTTClient_SubscribeError(t *testing.T) {
	c := NewMQTTClientWith(nil, testMQTTConfig(), nil)
	fake := NewFakeClient(c.subscribe)
	fake.SubscribeErr = errors.New("not authorized")
	c.client = fake
	require.NoError(t, c.Connect(context.Background()))
	assert.Empty(t, c.Subscriptions())
}

func TestMQTTClient_ConnectCancelled(t *testing.T) {
	c := NewMQTTClientWith(nil, testMQTTConfig(), nil)
	fake := NewFakeClient(nil)
	fake.ConnectErr = errors.New("connection refused")
	c.client = fake

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Connect(ctx), context.DeadlineExceeded)
	assert.False(t, c.IsConnected())
}

func TestMQTTClient_MapMessages(t *testing.T) {
	var (
		mu     sync.Mutex
		gotIDs []string
		gotErr []error
	)
	_, fake := connectedFake(t, func(vacuumID string, m *ValetudoMap, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotIDs = append(gotIDs, vacuumID)
		gotErr = append(gotErr, err)
		if err == nil {
			assert.Equal(t, 5, m.PixelSize)
		} else {
			assert.Nil(t, m)
		}
	})

	payload := pngWith(ztxt("ValetudoMap", 0, deflate(t, fixtureJSON(t))))
	assert.Equal(t, 1, fake.Deliver(rockyTopic, payload))
	assert.Equal(t, 1, fake.Deliver(rockyTopic, []byte("garbage")))
	assert.Equal(t, 0, fake.Deliver("valetudo/other/MapData/map-data", payload))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"rocky7", "rocky7"}, gotIDs)
	assert.NoError(t, gotErr[0])
	assert.Error(t, gotErr[1])
}

func TestMQTTClient_DockingHandler(t *testing.T) {
	c, fake := connectedFake(t, nil)
	docked := make(chan string, 4)
	c.SetDockingHandler(func(id string) { docked <- id })

	stateTopic := "valetudo/rocky7/StatusStateAttribute/status"
	fake.Deliver(stateTopic, []byte(`{"value":"cleaning"}`))
	fake.Deliver(stateTopic, []byte(`{"value":"docked"}`))
	fake.Deliver(stateTopic, []byte(`"docked"`))
	fake.Deliver(stateTopic, []byte(""))

	close(docked)
	var ids []string
	for id := range docked {
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"rocky7", "rocky7"}, ids)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{`{"value":"docked"}`, "docked"},
		{`"returning"`, "returning"},
		{"  idle\n", "idle"},
		{`{"other":"field"}`, `{"other":"field"}`},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.want, parseStatus([]byte(tt.payload)))
		})
	}
}

func TestDeriveStateTopic(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{rockyTopic, "valetudo/rocky7/StatusStateAttribute/status", true},
		{"home/valetudo/x/MapData/map-data", "home/valetudo/x/StatusStateAttribute/status", true},
		{"short/topic", "", false},
	}
	for _, tt := range tests {
		got, ok := deriveStateTopic(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"a/b/c", "a/b/c", true},
		{"a/+/c", "a/b/c", true},
		{"a/#", "a/b/c", true},
		{"#", "a", true},
		{"a/+", "a/b/c", false},
		{"a/b/c", "a/b", false},
		{"a/b", "a/c", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, topicMatches(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}

func TestMQTTClient_Disconnect(t *testing.T) {
	c, fake := connectedFake(t, nil)
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, fake.IsConnected())
}
