package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"service-dispatch/internal/logx"
)

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// MessageHandler receives one message.
type MessageHandler func(topic string, payload []byte)

// Client is a thin wrapper over a paho client.
type Client struct {
	client paho.Client
	broker string
	logger logx.Logger
}

// NewClient builds a client. It does not connect.
func NewClient(cfg Config, logger logx.Logger) *Client {
	if logger == nil {
		logger = logx.Nop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	log := logger.With(logx.String("broker", cfg.Broker))

	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn("mqtt connection lost", logx.Err(err))
	})

	return &Client{client: paho.NewClient(opts), broker: cfg.Broker, logger: log}
}

// Connect blocks until the broker accepts the connection or the attempt fails.
func (c *Client) Connect() error {
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.broker, err)
	}
	return nil
}

// Subscribe registers handler for topic.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	c.logger.Info("mqtt subscribed", logx.String("topic", topic))
	return nil
}

// Unsubscribe drops topic subscriptions.
func (c *Client) Unsubscribe(topics ...string) error {
	token := c.client.Unsubscribe(topics...)
	token.Wait()
	return token.Error()
}

// Disconnect closes the connection after a short quiesce.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
