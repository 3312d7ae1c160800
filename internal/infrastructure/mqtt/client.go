package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/student-registry/internal/infrastructure/config"
)

// Client publishes registry events to an MQTT broker.
//
// The broker holds a Last Will on the system status topic. "online" is
// republished after every reconnect and "offline" is sent on Close.
// Safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics
	logger *slog.Logger

	online atomic.Bool
}

// Connect dials the broker described by cfg. It fails with
// ErrConnectionFailed when the broker does not accept the session within
// the connect timeout.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		logger: logger,
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.logger.Info("reconnecting to broker", "broker", brokerURL(cfg.Broker))
	})

	c.client = pahomqtt.NewClient(opts)
	if err := await(c.client.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// onConnect runs on paho's goroutine and may not have fired yet.
	c.online.Store(true)
	return c, nil
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured default QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // config validation limits this to 0..2
}

func (c *Client) onConnect() {
	c.online.Store(true)
	c.client.Publish(c.topics.SystemStatus(), c.QoS(), true,
		buildStatusPayload("online", c.cfg.Broker.ClientID, ""))
	c.logger.Info("connected to broker")
}

func (c *Client) onConnectionLost(err error) {
	c.online.Store(false)
	c.logger.Warn("broker connection lost", "error", err)
}

// Close announces a graceful shutdown on the status topic and disconnects.
// It is safe to call on a nil Client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}

	if c.IsConnected() {
		status := buildStatusPayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown")
		if err := await(c.client.Publish(c.topics.SystemStatus(), c.QoS(), true, status),
			defaultPublishTimeout, ErrPublishFailed); err != nil {
			c.logger.Warn("offline status not delivered", "error", err)
		}
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.online.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker connection is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected combines the handler-tracked state with paho's own view.
func (c *Client) IsConnected() bool {
	if c == nil || c.client == nil {
		return false
	}
	return c.online.Load() && c.client.IsConnected()
}
