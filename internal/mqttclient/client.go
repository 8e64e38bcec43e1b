// Package mqttclient wraps paho.mqtt.golang with the reconnect/topic
// bookkeeping Mantle needs: subscription to the four Sparkplug-B topic
// classes (NBIRTH/DBIRTH/NDATA/DDATA) and publish support for the
// command write path (NCMD/DCMD).
package mqttclient

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MessageHandler receives every Sparkplug frame matching the subscribed
// topic classes.
type MessageHandler func(topic string, payload []byte)

// sparkplugTopicClasses are the four message classes the ingress
// component subscribes to.
var sparkplugTopicClasses = []string{"NBIRTH", "DBIRTH", "NDATA", "DDATA"}

type Client struct {
	conn      mqtt.Client
	topics    []string
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

type Options struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	SharedGroup string // optional MQTT 5 shared-subscription group prefix
	Log         zerolog.Logger
}

// Connect opens the broker connection and subscribes on every (re)connect.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		topics: sparkplugTopics(opts.SharedGroup),
		log:    opts.Log,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func sparkplugTopics(sharedGroup string) []string {
	topics := make([]string, 0, len(sparkplugTopicClasses))
	for _, class := range sparkplugTopicClasses {
		t := fmt.Sprintf("spBv1.0/+/%s/+/#", class)
		if sharedGroup != "" {
			t = fmt.Sprintf("$share/%s/%s", sharedGroup, t)
		}
		topics = append(topics, t)
	}
	return topics
}

func (c *Client) SetMessageHandler(h MessageHandler) {
	c.handler = h
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = 0
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received with no handler registered")
}

// Publish sends a command frame (NCMD/DCMD).
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.conn.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}
