package mqtt

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"go.uber.org/zap"

	"github.com/ericmeyer1/buzzline-06-meyer/internal/observability/metrics"
	telemetry "github.com/ericmeyer1/buzzline-06-meyer/internal/telemetry/domain"
)

const (
	defaultBufferSize = 1024
	defaultKeepAlive  = 30 * time.Second
)

// ErrUnavailable is returned by Poll while the broker cannot be reached.
var ErrUnavailable = errors.New("mqtt source: broker unavailable")

// Config describes the broker subscription.
type Config struct {
	Broker     string
	Topic      string
	ClientID   string
	QoS        byte
	BufferSize int
}

// Dialer opens the broker connection.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

// Subscriber buffers messages published on a topic until the next poll.
// The connection is established lazily and re-established by the first poll
// after it drops.
type Subscriber struct {
	cfg    Config
	dial   Dialer
	logger *zap.Logger

	mu        sync.Mutex
	buffer    []telemetry.RawMessage
	dropped   int64
	client    *paho.Client
	connected bool
}

// Option configures the subscriber.
type Option func(*Subscriber)

// WithDialer overrides the TCP dialer.
func WithDialer(dial Dialer) Option {
	return func(s *Subscriber) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Subscriber) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSubscriber validates cfg and constructs a subscriber.
func NewSubscriber(cfg Config, opts ...Option) (*Subscriber, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt source: empty broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt source: empty topic")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt source: invalid qos %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "analytics-consumer"
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	s := &Subscriber{
		cfg:    cfg,
		logger: zap.NewNop(),
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", address)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func brokerAddress(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err != nil || u.Host == "" {
		if _, _, splitErr := net.SplitHostPort(broker); splitErr == nil {
			return broker, nil
		}
		return "", fmt.Errorf("mqtt source: invalid broker %q", broker)
	}
	if u.Port() == "" {
		return net.JoinHostPort(u.Hostname(), "1883"), nil
	}
	return u.Host, nil
}

// Connect dials the broker and subscribes to the configured topic.
func (s *Subscriber) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	address, err := brokerAddress(s.cfg.Broker)
	if err != nil {
		return err
	}
	conn, err := s.dial(ctx, address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		Conn:              conn,
		ClientID:          s.cfg.ClientID,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){s.handlePublish},
		OnClientError:     s.onClientError,
		OnServerDisconnect: func(d *paho.Disconnect) {
			s.markDisconnected(fmt.Errorf("server disconnect, reason %d", d.ReasonCode))
		},
	})

	connack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   s.cfg.ClientID,
		CleanStart: true,
		KeepAlive:  uint16(defaultKeepAlive.Seconds()),
	})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: connect: %v", ErrUnavailable, err)
	}
	if connack.ReasonCode != 0 {
		_ = conn.Close()
		return fmt.Errorf("%w: connack reason %d", ErrUnavailable, connack.ReasonCode)
	}

	if _, err := client.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: s.cfg.Topic, QoS: s.cfg.QoS}},
	}); err != nil {
		_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
		return fmt.Errorf("%w: subscribe: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	s.client = client
	s.connected = true
	s.mu.Unlock()
	s.logger.Info("mqtt subscribed", zap.String("broker", address), zap.String("topic", s.cfg.Topic))
	return nil
}

// Poll drains buffered messages in arrival order, connecting first if needed.
// A failed connect leaves the buffer untouched for the next poll.
func (s *Subscriber) Poll(ctx context.Context) ([]telemetry.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s.drain(), nil
}

func (s *Subscriber) drain() []telemetry.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) == 0 {
		return nil
	}
	out := s.buffer
	s.buffer = nil
	return out
}

// Dropped returns how many messages were discarded because the buffer was full.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close disconnects from the broker.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connected = false
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}

func (s *Subscriber) handlePublish(pr paho.PublishReceived) (bool, error) {
	if pr.Packet == nil {
		return false, nil
	}
	msg, err := telemetry.DecodeRawMessage(pr.Packet.Payload)
	if err != nil {
		metrics.IncIngest(metrics.IngestMalformed)
		s.logger.Warn("undecodable payload skipped", zap.String("topic", pr.Packet.Topic), zap.Error(err))
		return true, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= s.cfg.BufferSize {
		s.dropped++
		s.logger.Warn("mqtt buffer full, message dropped",
			zap.String("author", msg.Author),
			zap.String("timestamp", msg.Timestamp),
		)
		return true, nil
	}
	s.buffer = append(s.buffer, msg)
	return true, nil
}

func (s *Subscriber) onClientError(err error) {
	s.markDisconnected(err)
}

func (s *Subscriber) markDisconnected(err error) {
	s.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	s.client = nil
	s.mu.Unlock()
	if wasConnected {
		s.logger.Warn("mqtt connection lost", zap.Error(err))
	}
}
