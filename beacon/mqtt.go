package beacon

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ReportHandler is called when a scanner report message is received.
// rawPayload is provided so callers can archive payloads that fail to decode.
type ReportHandler func(scannerID int, rawPayload []byte, scanner *Scanner, err error)

// MQTTClient manages the MQTT connection and per-scanner report subscriptions.
type MQTTClient struct {
	client        mqtt.Client
	config        *Config
	reportHandler ReportHandler
	isConnected   bool
	mu            sync.RWMutex
}

var (
	globalClient *MQTTClient
	clientMu     sync.Mutex
)

// InitMQTT initializes the global MQTT client with the provided configuration.
// If neither the MQTT_BROKER env var nor config broker is set, MQTT is
// disabled and this returns nil.
func InitMQTT(config *Config, handler ReportHandler) (*MQTTClient, error) {
	clientMu.Lock()
	defer clientMu.Unlock()

	broker := os.Getenv("MQTT_BROKER")
	if broker == "" && config != nil && config.MQTT.Broker != "" {
		broker = config.MQTT.Broker
	}

	if broker == "" {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}

	if config == nil || len(config.Scanners) == 0 {
		return nil, fmt.Errorf("MQTT enabled but no scanner configuration provided")
	}

	client := &MQTTClient{
		config:        config,
		reportHandler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" && config.MQTT.ClientID != "" {
		clientID = config.MQTT.ClientID
	}
	if clientID == "" {
		clientID = "beaconmesh"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" && config.MQTT.Username != "" {
		username = config.MQTT.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" && config.MQTT.Password != "" {
			password = config.MQTT.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false) // Preserve subscriptions on reconnect
	opts.SetOrderMatters(false) // Allow concurrent processing

	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)
	opts.SetReconnectingHandler(client.onReconnecting)

	client.client = mqtt.NewClient(opts)

	go client.connectWithRetry()

	globalClient = client
	return client, nil
}

// GetMQTTClient returns the global MQTT client instance.
func GetMQTTClient() *MQTTClient {
	clientMu.Lock()
	defer clientMu.Unlock()
	return globalClient
}

// connectWithRetry attempts to connect to the broker with exponential backoff.
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Println("Connecting to MQTT broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("Successfully connected to MQTT broker")
				c.setConnected(true)
				return
			}
			log.Printf("MQTT connection failed: %v", token.Error())
		} else {
			log.Println("MQTT connection timeout")
		}

		log.Printf("Retrying MQTT connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// onConnect subscribes to every configured scanner's report topic.
func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("MQTT connected, subscribing to scanner topics...")
	c.setConnected(true)

	for _, sc := range c.config.Scanners {
		if sc.Topic == "" {
			log.Printf("Warning: scanner %d has no topic configured", sc.ID)
			continue
		}

		log.Printf("Subscribing to %s for scanner %d", sc.Topic, sc.ID)
		token := client.Subscribe(sc.Topic, 0, c.createReportHandler(sc.ID))

		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("Error subscribing to %s: %v", sc.Topic, token.Error())
		} else {
			log.Printf("Successfully subscribed to %s", sc.Topic)
		}
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("MQTT connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	log.Println("MQTT reconnecting...")
}

// createReportHandler creates a handler for a specific scanner's report topic.
func (c *MQTTClient) createReportHandler(scannerID int) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		payload := msg.Payload()
		log.Printf("Received report for scanner %d (topic: %s, size: %d bytes)",
			scannerID, msg.Topic(), len(payload))

		scanner, err := DecodeReportData(payload)
		if err != nil {
			log.Printf("Error decoding report for scanner %d: %v", scannerID, err)
			if c.reportHandler != nil {
				c.reportHandler(scannerID, payload, nil, err)
			}
			return
		}

		// A scanner's block id must agree with its configured topic.
		if scanner.ID != scannerID {
			err := fmt.Errorf("report block id %d does not match topic scanner %d", scanner.ID, scannerID)
			log.Printf("Rejecting report: %v", err)
			if c.reportHandler != nil {
				c.reportHandler(scannerID, payload, nil, err)
			}
			return
		}

		if c.reportHandler != nil {
			c.reportHandler(scannerID, payload, scanner, nil)
		}
	}
}

// IsConnected returns true if the MQTT client is connected.
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection.
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("Disconnecting from MQTT broker...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing.
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock creates an MQTTClient with a provided mqtt.Client.
// Used in tests with mock clients.
func newMQTTClientWithMock(client mqtt.Client, config *Config, handler ReportHandler) *MQTTClient {
	return &MQTTClient{
		client:        client,
		config:        config,
		reportHandler: handler,
	}
}
