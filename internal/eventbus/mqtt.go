package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/ringtrail/internal/catalog"
)

// DefaultTopicPrefix is used when MQTTOptions.TopicPrefix is empty.
const DefaultTopicPrefix = "ringtrail/events"

// DefaultPublishTimeout bounds the initial connect and each publish when
// MQTTOptions.PublishTimeout is zero.
const DefaultPublishTimeout = 5 * time.Second

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	BrokerURL      string
	ClientID       string
	TopicPrefix    string
	QoS            byte
	PublishTimeout time.Duration
}

// Publisher is the subset of an MQTT client used by MQTTSink.
// Publish returns once the broker acknowledged the message or ctx is done.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// MQTTSink publishes the wire encoding of each event to
// "<prefix>/<kind>/<variant>".
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
	logger *slog.Logger
}

// NewMQTTSink wraps an existing publisher.
func NewMQTTSink(pub Publisher, prefix string, qos byte, logger *slog.Logger) *MQTTSink {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{
		pub:    pub,
		prefix: strings.TrimSuffix(prefix, "/"),
		qos:    qos,
		logger: logger,
	}
}

// DialMQTT connects to the broker and returns a sink publishing through it.
// It gives up when ctx is done or the publish timeout elapses before the
// first connection succeeds.
func DialMQTT(ctx context.Context, opts MQTTOptions, logger *slog.Logger) (*MQTTSink, error) {
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt: broker url is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("mqtt: qos %d out of range", opts.QoS)
	}
	if opts.PublishTimeout < 0 {
		return nil, fmt.Errorf("mqtt: publish timeout %s must not be negative", opts.PublishTimeout)
	}
	pub, err := dialPaho(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", opts.BrokerURL, err)
	}
	return NewMQTTSink(pub, opts.TopicPrefix, opts.QoS, logger), nil
}

// Topic returns the topic ev is published on.
func (s *MQTTSink) Topic(ev catalog.Event) string {
	return s.prefix + "/" + ev.EventKind() + "/" + catalog.Variant(ev)
}

// Emit encodes ev and publishes it.
func (s *MQTTSink) Emit(ctx context.Context, ev catalog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := catalog.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("mqtt: encode: %w", err)
	}
	topic := s.Topic(ev)
	if err := s.pub.Publish(ctx, topic, s.qos, false, payload); err != nil {
		return fmt.Errorf("mqtt: publish %s: %w", topic, err)
	}
	s.logger.Debug("event published", "topic", topic, "bytes", len(payload))
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.pub.Close()
}

// pahoPublisher adapts a paho client to Publisher.
type pahoPublisher struct {
	raw     mqtt.Client
	timeout time.Duration
}

func dialPaho(ctx context.Context, opts MQTTOptions) (*pahoPublisher, error) {
	timeout := opts.PublishTimeout
	if timeout == 0 {
		timeout = DefaultPublishTimeout
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	c := mqtt.NewClient(o)

	if err := awaitToken(ctx, c.Connect(), timeout); err != nil {
		c.Disconnect(0)
		return nil, err
	}
	return &pahoPublisher{raw: c, timeout: timeout}, nil
}

func (p *pahoPublisher) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	return awaitToken(ctx, p.raw.Publish(topic, qos, retained, payload), p.timeout)
}

// awaitToken waits for token to complete, for ctx to be done or for timeout
// to elapse, whichever comes first. The client keeps retrying a message it
// has queued; only the caller stops waiting.
func awaitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pahoPublisher) Close() {
	p.raw.Disconnect(250)
}
