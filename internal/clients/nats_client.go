package clients

import (
	"fmt"
	"time"

	"crosschain-core/internal/config"
	"crosschain-core/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes submission events to NATS, through JetStream when enabled
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	logger *logrus.Logger
}

// NewNATSClient connects to the NATS server in cfg
func NewNATSClient(cfg config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	logger.WithField("timeout", connectTimeout).Debug("[NATS] Using connect timeout")

	conn, err := nats.Connect(cfg.URL,
		nats.Name("crosschain-core"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("[NATS] Disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("[NATS] Reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{conn: conn, logger: logger}
	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		client.js = js
	}

	logger.WithFields(logrus.Fields{
		"url":       conn.ConnectedUrl(),
		"jetstream": cfg.EnableJetStream,
	}).Info("[NATS] Connected")
	return client, nil
}

// Publish sends data on subject
func (c *NATSClient) Publish(subject string, data []byte) error {
	if c.js != nil {
		if _, err := c.js.Publish(subject, data); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports the connection status
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains pending publishes and closes the connection
func (c *NATSClient) Close() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.WithError(err).Warn("[NATS] Drain failed, closing")
		c.conn.Close()
	}
}
