package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MapHandler is called for every map message. m is nil when decoding
// failed.
type MapHandler func(vacuumID string, m *ValetudoMap, err error)

// DockingHandler is called when a vacuum enters the 'docked' state
type DockingHandler func(vacuumID string)

// MQTTClient subscribes to Valetudo map and status topics.
type MQTTClient struct {
	client     mqtt.Client
	config     *Config
	onMap      MapHandler
	onDocked   DockingHandler
	subscribed map[string]bool
	connected  bool
	mu         sync.RWMutex
}

// envOr returns the environment variable key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// BrokerURL returns the effective broker, MQTT_BROKER taking precedence.
func BrokerURL(config *Config) string {
	fallback := ""
	if config != nil {
		fallback = config.MQTT.Broker
	}
	return envOr("MQTT_BROKER", fallback)
}

// NewMQTTClient builds a client for the configured broker. It returns nil
// and no error when no broker is configured.
func NewMQTTClient(config *Config, onMap MapHandler) (*MQTTClient, error) {
	broker := BrokerURL(config)
	if broker == "" {
		log.Println("MQTT disabled: no broker configured")
		return nil, nil
	}
	if config == nil || len(config.Vacuums) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no vacuum configuration provided")
	}

	c := &MQTTClient{config: config, onMap: onMap, subscribed: make(map[string]bool)}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(envOr("MQTT_CLIENT_ID", firstNonEmpty(config.MQTT.ClientID, "tudocover")))
	if username := envOr("MQTT_USERNAME", config.MQTT.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", config.MQTT.Password))
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)
	opts.SetOnConnectHandler(c.subscribe)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
		c.setConnected(false)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewMQTTClientWith wraps an existing mqtt.Client such as a FakeClient.
func NewMQTTClientWith(client mqtt.Client, config *Config, onMap MapHandler) *MQTTClient {
	return &MQTTClient{client: client, config: config, onMap: onMap, subscribed: make(map[string]bool)}
}

// Connect connects with exponential backoff until it succeeds or ctx ends.
func (c *MQTTClient) Connect(ctx context.Context) error {
	delay := time.Second
	const maxDelay = 60 * time.Second
	for {
		log.Println("Connecting to MQTT broker...")
		token := c.client.Connect()
		if token.WaitTimeout(10*time.Second) && token.Error() == nil {
			log.Println("Successfully connected to MQTT broker")
			c.setConnected(true)
			return nil
		}
		log.Printf("MQTT connection failed: %v; retrying in %v", token.Error(), delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDelay)
	}
}

// subscribe registers map and status handlers for every configured vacuum.
// It runs on every (re)connect.
func (c *MQTTClient) subscribe(client mqtt.Client) {
	c.setConnected(true)
	for _, vacuum := range c.config.Vacuums {
		if vacuum.Topic == "" {
			continue
		}
		c.subscribeTopic(client, vacuum.Topic, c.mapMessageHandler(vacuum.ID))
		if stateTopic, ok := deriveStateTopic(vacuum.Topic); ok {
			c.subscribeTopic(client, stateTopic, c.stateMessageHandler(vacuum.ID))
		}
	}
}

func (c *MQTTClient) subscribeTopic(client mqtt.Client, topic string, handler mqtt.MessageHandler) {
	token := client.Subscribe(topic, 0, handler)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("Error subscribing to %s: %v", topic, token.Error())
		return
	}
	c.mu.Lock()
	c.subscribed[topic] = true
	c.mu.Unlock()
	log.Printf("Subscribed to %s", topic)
}

// Subscriptions returns the topics subscribed so far.
func (c *MQTTClient) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subscribed))
	for t := range c.subscribed {
		out = append(out, t)
	}
	return out
}

func (c *MQTTClient) mapMessageHandler(vacuumID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received map data for %s (%d bytes)", vacuumID, len(payload))
		m, err := DecodeMapData(payload)
		if err != nil {
			log.Printf("Error decoding map data for %s: %v", vacuumID, err)
		}
		if c.onMap != nil {
			c.onMap(vacuumID, m, err)
		}
	}
}

// SetDockingHandler registers a callback that is invoked when a vacuum docks
func (c *MQTTClient) SetDockingHandler(handler DockingHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDocked = handler
}

func (c *MQTTClient) dockingHandler() DockingHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.onDocked
}

// deriveStateTopic converts a map data topic to a status topic, e.g.
// valetudo/rocky7/MapData/map-data -> valetudo/rocky7/StatusStateAttribute/status.
func deriveStateTopic(mapDataTopic string) (string, bool) {
	parts := strings.Split(mapDataTopic, "/")
	if len(parts) < 4 {
		return "", false
	}
	parts[len(parts)-2] = "StatusStateAttribute"
	parts[len(parts)-1] = "status"
	return strings.Join(parts, "/"), true
}

// parseStatus accepts {"value":"docked"}, "docked" and bare docked.
func parseStatus(payload []byte) string {
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Value != "" {
		return obj.Value
	}
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(payload))
}

func (c *MQTTClient) stateMessageHandler(vacuumID string) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		status := parseStatus(msg.Payload())
		if status == "" {
			return
		}
		log.Printf("Vacuum %s state: %s", vacuumID, status)
		if status != "docked" {
			return
		}
		if h := c.dockingHandler(); h != nil {
			h(vacuumID)
		}
	}
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
	}
	c.setConnected(false)
}

// Client returns the underlying client for publishing.
func (c *MQTTClient) Client() mqtt.Client {
	return c.client
}
