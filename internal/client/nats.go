package client

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	apperrors "github.com/stafflane/be-hr-requests/internal/errors"
)

// NATSClient wraps a NATS connection with a JetStream context for at-least-
// once event publishing.
type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// ConnectNATS dials the NATS server and initializes JetStream. Reconnects
// are handled by the client library.
func ConnectNATS(url string) (*NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to connect to NATS")
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to initialize JetStream")
	}
	return &NATSClient{conn: conn, js: js}, nil
}

// Publish sends a message through JetStream, honoring context cancellation.
func (c *NATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to publish NATS message")
	}
	return nil
}

// Close drains the connection, flushing buffered messages.
func (c *NATSClient) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
	}
}
