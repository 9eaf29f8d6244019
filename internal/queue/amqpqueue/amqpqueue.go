// Package amqpqueue binds the queue contracts to a RabbitMQ broker.
package amqpqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"storyteller/internal/infra"
	"storyteller/internal/queue"
)

// Channel is the subset of *amqp.Channel the queue uses.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	ConsumeWithContext(ctx context.Context, queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Broker owns one connection and one channel to RabbitMQ.
type Broker struct {
	conn    *amqp.Connection
	channel Channel
	queue   string
	logger  infra.Logger
}

// Dial connects to the broker and declares the durable job queue.
func Dial(url, queueName string, logger infra.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpqueue: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpqueue: open channel: %w", err)
	}
	b, err := NewBroker(ch, queueName, logger)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	b.conn = conn
	go b.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	return b, nil
}

// NewBroker declares the job queue on an existing channel.
func NewBroker(ch Channel, queueName string, logger infra.Logger) (*Broker, error) {
	if ch == nil {
		return nil, errors.New("amqpqueue: channel is required")
	}
	if queueName == "" {
		return nil, errors.New("amqpqueue: queue name is required")
	}
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("amqpqueue: declare %s: %w", queueName, err)
	}
	return &Broker{channel: ch, queue: queueName, logger: infra.Component(logger, "amqp")}, nil
}

func (b *Broker) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		b.logger.Error().Str("reason", err.Reason).Int("code", err.Code).Msg("amqp: connection closed")
	}
}

// Close releases the channel and the connection.
func (b *Broker) Close() error {
	var errs []error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Source returns a consumer-side view capped at prefetch unacknowledged
// deliveries.
func (b *Broker) Source(prefetch int) *Source {
	if prefetch <= 0 {
		prefetch = queue.DefaultPrefetch
	}
	return &Source{broker: b, prefetch: prefetch}
}

// Publisher returns the producer-side view.
func (b *Broker) Publisher() *Publisher {
	return &Publisher{broker: b}
}

// Source consumes with manual acknowledgement.
type Source struct {
	broker   *Broker
	prefetch int
	once     sync.Once
}

func (s *Source) Deliveries(ctx context.Context) (<-chan queue.Delivery, error) {
	ch := s.broker.channel
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("amqpqueue: qos: %w", err)
	}
	raw, err := ch.ConsumeWithContext(ctx, s.broker.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("amqpqueue: consume: %w", err)
	}

	out := make(chan queue.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- delivery{d: d}:
				case <-ctx.Done():
					// Unsettled; the broker redelivers it once the channel closes.
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Source) Close() error {
	var err error
	s.once.Do(func() { err = s.broker.Close() })
	return err
}

type delivery struct {
	d amqp.Delivery
}

func (d delivery) Body() []byte      { return d.d.Body }
func (d delivery) MessageID() string { return d.d.MessageId }
func (d delivery) Ack() error        { return d.d.Ack(false) }

// Reject discards the message; the broker does not requeue it.
func (d delivery) Reject() error { return d.d.Nack(false, false) }

// Publisher sends persistent job envelopes through the default exchange.
type Publisher struct {
	broker *Broker
}

func (p *Publisher) Publish(ctx context.Context, storyID string) error {
	body, err := queue.EncodeEnvelope(storyID)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Body:         body,
	}
	if err := p.broker.channel.PublishWithContext(ctx, "", p.broker.queue, false, false, msg); err != nil {
		return fmt.Errorf("amqpqueue: publish %s: %w", storyID, err)
	}
	return nil
}
