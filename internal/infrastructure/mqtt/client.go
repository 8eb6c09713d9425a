// Package mqtt publishes sale and lifecycle events to an MQTT broker.
// The broker is optional; when disabled the rest of the service runs
// unaffected.
package mqtt

import (
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/citrusbyte/lemonade-core/internal/infrastructure/config"
	"github.com/citrusbyte/lemonade-core/internal/infrastructure/logging"
)

// StatusTopic carries the retained online/offline flag for this service.
const StatusTopic = "lemonade/system/status"

const (
	connectTimeout   = 10 * time.Second
	publishTimeout   = 5 * time.Second
	reconnectMaxWait = 30 * time.Second
)

var ErrNotConnected = errors.New("mqtt client not connected")

// Client is a thin wrapper over the paho client with a last-will status
// topic and bounded publish waits.
type Client struct {
	client pahomqtt.Client
	qos    byte
	log    *logging.Logger
}

// Connect builds and connects the client. It blocks up to the connect
// timeout; afterwards the paho client reconnects on its own.
func Connect(cfg config.MQTTConfig, log *logging.Logger) (*Client, error) {
	if log == nil {
		log = logging.Default()
	}

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
	opts := pahomqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(cfg.Broker.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(reconnectMaxWait).
		SetConnectTimeout(connectTimeout).
		SetWill(StatusTopic, "offline", 1, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		log.Info("mqtt connected", "broker", broker)
		c.Publish(StatusTopic, 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connecting to %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}

	return &Client{client: client, qos: byte(cfg.QoS), log: log}, nil
}

// Publish sends a payload and waits for broker acknowledgement at the
// configured QoS.
func (c *Client) Publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, c.qos, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publishing to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close publishes the offline status and disconnects.
func (c *Client) Close() {
	if c.client.IsConnected() {
		token := c.client.Publish(StatusTopic, 1, true, "offline")
		token.WaitTimeout(publishTimeout)
	}
	c.client.Disconnect(250)
}
