// Package mqtt publishes archived observations to a broker.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	publishTimeout = 10 * time.Second
)

var (
	connectTimeout = 15 * time.Second
	newPahoClient  = paho.NewClient
)

type Options struct {
	// BrokerURL is mqtt://, tcp://, ssl://, tls:// or mqtts://, with optional user:password.
	BrokerURL string
	ClientID  string
	// StatusTopic, when set, carries a retained "online" while connected and "offline" as the
	// last will.
	StatusTopic string
}

type Client struct {
	conn        paho.Client
	statusTopic string
}

func clientOptions(o Options) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(strings.TrimSpace(o.BrokerURL))
	if err != nil {
		return nil, "", fmt.Errorf("mqtt: parse broker url: %w", err)
	}
	if u.Host == "" {
		return nil, "", errors.New("mqtt: broker host is required")
	}

	opts := paho.NewClientOptions()
	var broker string
	switch strings.ToLower(u.Scheme) {
	case "ssl", "tls", "mqtts":
		broker = "ssl://" + u.Host
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	case "mqtt", "tcp", "":
		broker = "tcp://" + u.Host
	default:
		return nil, "", fmt.Errorf("mqtt: unsupported scheme %q", u.Scheme)
	}
	opts.AddBroker(broker)

	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}
	id := strings.TrimSpace(o.ClientID)
	if id == "" {
		id = "weather-finder-" + time.Now().Format("150405.000")
	}
	opts.SetClientID(id)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	if o.StatusTopic != "" {
		opts.SetWill(o.StatusTopic, statusOffline, 1, true)
	}
	return opts, broker, nil
}

// Connect dials the broker and waits for the first connection.
func Connect(o Options) (*Client, error) {
	opts, broker, err := clientOptions(o)
	if err != nil {
		return nil, err
	}
	c := &Client{statusTopic: o.StatusTopic}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", broker, "error", err)
	}
	opts.OnConnect = func(pc paho.Client) {
		slog.Info("mqtt connected", "broker", broker)
		if c.statusTopic != "" {
			pc.Publish(c.statusTopic, 1, true, statusOnline)
		}
	}

	c.conn = newPahoClient(opts)
	tok := c.conn.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps dialing in the background until told to stop.
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s timed out", broker)
	}
	if err := tok.Error(); err != nil {
		c.conn.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect to %s: %w", broker, err)
	}
	return c, nil
}

// Publish sends a retained QoS 1 message.
func (c *Client) Publish(topic string, payload []byte) error {
	tok := c.conn.Publish(topic, 1, true, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	return tok.Error()
}

// Close marks the service offline and disconnects.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	if c.statusTopic != "" && c.conn.IsConnected() {
		c.conn.Publish(c.statusTopic, 1, true, statusOffline).WaitTimeout(time.Second)
	}
	c.conn.Disconnect(1000)
}
