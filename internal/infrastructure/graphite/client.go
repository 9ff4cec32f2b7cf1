package graphite

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
	"github.com/nerrad567/sensorlink/internal/telemetry"
)

const defaultTimeout = 10 * time.Second

// Dialer opens stream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Client sends batches to one carbon plaintext listener.
//
// Thread Safety: Send may be called concurrently; each call uses its own
// connection.
type Client struct {
	addr    string
	prefix  string
	timeout time.Duration
	dialer  Dialer
	logger  Logger
}

// New validates cfg and creates a Client. No connection is made.
func New(cfg config.GraphiteConfig) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, cfg.Port)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		prefix:  cfg.Prefix,
		timeout: timeout,
		dialer:  &net.Dialer{},
		logger:  noopLogger{},
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// SetDialer replaces the network dialer.
func (c *Client) SetDialer(d Dialer) {
	c.dialer = d
}

// Addr returns the collector address as host:port.
func (c *Client) Addr() string {
	return c.addr
}

// Send writes every measurement of b as one line over a fresh connection.
// A batch without measurements is a no-op. Any failure means the batch may
// have been partially received; callers resend the whole batch.
func (c *Client) Send(ctx context.Context, b telemetry.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.addr, err)
	}
	defer conn.Close() //nolint:errcheck // Close error after a complete write carries no information

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline) //nolint:errcheck // Unsupported deadlines fall back to the dial timeout
	}

	payload := FormatBatch(c.prefix, b)
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, c.addr, err)
	}

	c.logger.Debug("batch sent", "addr", c.addr, "timestamp", b.Timestamp, "lines", b.Len(), "bytes", len(payload))
	return nil
}

// HealthCheck verifies the collector accepts connections.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.addr, err)
	}
	return conn.Close()
}
