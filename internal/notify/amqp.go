package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"venueattend/internal/queue"
)

// DefaultExchange receives attendance events routed by message type.
const DefaultExchange = "venueattend.events"

// Channel is the subset of *amqp.Channel the forwarder publishes through.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Dialer opens a channel to the broker. The returned closer releases the
// underlying connection.
type Dialer func(url string) (Channel, func() error, error)

// DialAMQP connects with amqp091.
func DialAMQP(url string) (Channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQPForwarder publishes queued events to a durable topic exchange. The
// channel is opened lazily and reopened after a failed publish.
type AMQPForwarder struct {
	url      string
	exchange string
	dial     Dialer
	logger   *slog.Logger

	mu      sync.Mutex
	ch      Channel
	closeFn func() error
}

type ForwarderOption func(*AMQPForwarder)

func WithExchange(name string) ForwarderOption {
	return func(f *AMQPForwarder) {
		if name != "" {
			f.exchange = name
		}
	}
}

func WithDialer(d Dialer) ForwarderOption {
	return func(f *AMQPForwarder) { f.dial = d }
}

func WithLogger(logger *slog.Logger) ForwarderOption {
	return func(f *AMQPForwarder) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewAMQPForwarder(url string, opts ...ForwarderOption) *AMQPForwarder {
	f := &AMQPForwarder{
		url:      url,
		exchange: DefaultExchange,
		dial:     DialAMQP,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward publishes msg with its type as the routing key.
func (f *AMQPForwarder) Forward(ctx context.Context, msg queue.Message) error {
	if msg.Type == "" {
		return errors.New("message type is required")
	}
	ch, err := f.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         msg.Type,
		Body:         msg.Body,
	}
	if err := ch.PublishWithContext(ctx, f.exchange, msg.Type, false, false, pub); err != nil {
		f.reset()
		return fmt.Errorf("publish %s: %w", msg.Type, err)
	}
	return nil
}

func (f *AMQPForwarder) channel() (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ch != nil {
		return f.ch, nil
	}
	ch, closeFn, err := f.dial(f.url)
	if err != nil {
		return nil, fmt.Errorf("amqp connect: %w", err)
	}
	if err := ch.ExchangeDeclare(f.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, fmt.Errorf("declare exchange %s: %w", f.exchange, err)
	}
	f.logger.Info("amqp channel ready", "exchange", f.exchange)
	f.ch, f.closeFn = ch, closeFn
	return ch, nil
}

func (f *AMQPForwarder) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *AMQPForwarder) closeLocked() {
	if f.ch != nil {
		_ = f.ch.Close()
	}
	if f.closeFn != nil {
		_ = f.closeFn()
	}
	f.ch, f.closeFn = nil, nil
}

// Close releases the channel and connection.
func (f *AMQPForwarder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
	return nil
}
