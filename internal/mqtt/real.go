package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultBufferSize is how many system messages are kept while offline.
const DefaultBufferSize = 64

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// pahoClient is the subset of paho.Client the agent uses.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Options configures a RealClient.
type Options struct {
	Broker     string
	ClientID   string // random when empty
	Node       string
	OnCommand  CommandHandler
	Logger     *slog.Logger
	BufferSize int
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client    pahoClient
	topics    Topics
	onCommand CommandHandler
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	buf    *ringBuffer
	online bool // connected at least once
}

func newRealClient(o Options) *RealClient {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := o.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealClient{
		topics:    TopicsFor(o.Node),
		onCommand: o.OnCommand,
		logger:    logger,
		now:       time.Now,
		buf:       newRingBuffer(size),
	}
}

// ClientID returns id, or a random one derived from node when id is empty.
func ClientID(id, node string) string {
	if id != "" {
		return id
	}
	return "signal-agent-" + node + "-" + uuid.NewString()[:8]
}

// NewRealClient connects to the broker. An unreachable broker is not an
// error: paho keeps retrying and system events are buffered meanwhile.
func NewRealClient(o Options) (*RealClient, error) {
	c := newRealClient(o)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: c.now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(ClientID(o.ClientID, o.Node)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(c.topics.System, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", "error", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		c.logger.Warn("broker not reachable yet, retrying in background", "broker", o.Broker)
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// Topics returns the client's topics.
func (c *RealClient) Topics() Topics {
	return c.topics
}

// handleConnect runs on every (re)connection: resubscribe, replay the
// offline buffer, and announce the reconnect.
func (c *RealClient) handleConnect() {
	c.logger.Info("connected", "topic", c.topics.Command)

	token := c.client.Subscribe(c.topics.Command, 1, c.handleMessage)
	if err := wait(token, "subscribe"); err != nil {
		c.logger.Error("subscribe failed", "topic", c.topics.Command, "error", err)
	}

	c.mu.Lock()
	pending := c.buf.drainAll()
	reconnect := c.online
	c.online = true
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Info("replaying buffered messages", "count", len(pending))
	}
	for _, m := range pending {
		if err := c.send(m); err != nil {
			c.logger.Warn("replay failed", "topic", m.topic, "error", err)
		}
	}

	if reconnect {
		if err := c.PublishSystem(SystemEvent{Timestamp: c.now(), Event: EventReconnected}); err != nil {
			c.logger.Warn("publish reconnect event failed", "error", err)
		}
	}
}

func (c *RealClient) handleMessage(_ paho.Client, msg paho.Message) {
	c.logger.Debug("command received", "topic", msg.Topic(), "bytes", len(msg.Payload()))
	if c.onCommand != nil {
		c.onCommand(msg.Payload())
	}
}

// PublishResult sends a command result at QoS 0.
func (c *RealClient) PublishResult(ev ResultEvent) error {
	payload, err := FormatResultPayload(ev)
	if err != nil {
		return fmt.Errorf("format result payload: %w", err)
	}
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	return c.send(bufferedMsg{topic: c.topics.Result, payload: payload})
}

// PublishSystem sends a system event at QoS 1, buffering while offline.
func (c *RealClient) PublishSystem(ev SystemEvent) error {
	payload, err := FormatSystemPayload(ev)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: c.topics.System, payload: payload, qos: 1, retained: ev.Retained}

	if !c.client.IsConnected() {
		c.mu.Lock()
		dropped := c.buf.push(msg)
		n := c.buf.len()
		c.mu.Unlock()
		if dropped {
			c.logger.Warn("offline buffer full, dropping oldest", "capacity", n)
		}
		c.logger.Debug("buffered system event", "event", ev.Event, "buffered", n)
		return nil
	}
	return c.send(msg)
}

func (c *RealClient) send(m bufferedMsg) error {
	return wait(c.client.Publish(m.topic, m.qos, m.retained, m.payload), "publish")
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000)
	return nil
}

func wait(token paho.Token, op string) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s timeout", op)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
