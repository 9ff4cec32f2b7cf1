package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/sensorlink/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Client wraps paho.mqtt.golang for a node whose network link is only up
// during delivery.
//
// A session is opened on demand by Connect (or by the first publish of a
// cycle) and closed gracefully by Disconnect before the link goes down.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg    config.MQTTConfig
	topics Topics

	// newClient creates the paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu     sync.Mutex
	client pahomqtt.Client

	logger Logger
}

// New validates cfg and creates a disconnected client for site.
func New(cfg config.MQTTConfig, site string) (*Client, error) {
	if cfg.Broker.Host == "" {
		return nil, fmt.Errorf("%w: broker host is required", ErrInvalidConfig)
	}
	if cfg.Broker.Port < 1 || cfg.Broker.Port > 65535 {
		return nil, fmt.Errorf("%w: broker port %d out of range", ErrInvalidConfig, cfg.Broker.Port)
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = "sensorlink-" + site
	}

	topics := Topics{Prefix: cfg.TopicPrefix, Site: site}
	if err := topics.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return &Client{
		cfg:       cfg,
		topics:    topics,
		newClient: pahomqtt.NewClient,
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

// Topics returns the topic builder of this node.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured publish QoS.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated in New
}

// Connect opens a session unless one is already open, then publishes the
// retained online marker. It blocks until the broker answers, ctx is done or
// the connect timeout passes.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		return nil
	}

	opts := buildClientOptions(c.cfg, c.topics)
	client := c.newClient(opts)

	if err := waitToken(ctx, client.Connect(), opts.ConnectTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.brokerAddr(), err)
	}
	c.client = client

	online := availabilityPayload("online", c.cfg.Broker.ClientID, "", time.Now())
	if err := waitToken(ctx, client.Publish(c.topics.Availability(), 1, true, online), c.publishTimeout()); err != nil {
		c.logger.Warn("mqtt online marker not published", "error", err)
	}

	c.logger.Debug("mqtt connected", "broker", c.brokerAddr())
	return nil
}

// Disconnect publishes the retained graceful offline marker and closes the
// session. It does nothing when no session is open.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		offline := availabilityPayload("offline", c.cfg.Broker.ClientID, "cycle_complete", time.Now())
		token := c.client.Publish(c.topics.Availability(), 1, true, offline)
		token.WaitTimeout(c.publishTimeout())
		c.client.Disconnect(defaultDisconnectQuiesce)
	}
	c.client = nil
	c.logger.Debug("mqtt disconnected", "broker", c.brokerAddr())
}

// Close is Disconnect for shutdown paths that expect an io.Closer.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.Disconnect()
	return nil
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnected()
}

// HealthCheck reports whether a session is open.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) brokerAddr() string {
	return fmt.Sprintf("%s:%d", c.cfg.Broker.Host, c.cfg.Broker.Port)
}

func (c *Client) publishTimeout() time.Duration {
	if c.cfg.PublishTimeout > 0 {
		return c.cfg.PublishTimeout
	}
	return defaultPublishTimeout
}

// waitToken waits for token, ctx or timeout, whichever comes first.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}
