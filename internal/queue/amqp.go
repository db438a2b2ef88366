package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"hsmt-backend/internal/shared/telemetry"
)

// AMQP is a RabbitMQ bus with durable queues, persistent messages and
// automatic reconnect.
type AMQP struct {
	url     string
	backoff time.Duration
	dial    func(url string) (*amqp.Connection, error)

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	closed  bool
	declare map[string]bool
}

// NewAMQP dials url and returns a bus. backoff is the wait between reconnect attempts.
func NewAMQP(url string, backoff time.Duration) (*AMQP, error) {
	if url == "" {
		return nil, errors.New("amqp url is required")
	}
	if backoff <= 0 {
		backoff = 30 * time.Second
	}
	b := &AMQP{url: url, backoff: backoff, dial: amqp.Dial, declare: map[string]bool{}}
	if _, err := b.connection(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *AMQP) connection() (*amqp.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectionLocked()
}

func (b *AMQP) connectionLocked() (*amqp.Connection, error) {
	if b.closed {
		return nil, errors.New("amqp bus closed")
	}
	if b.conn != nil && !b.conn.IsClosed() {
		return b.conn, nil
	}
	conn, err := b.dial(b.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	b.conn = conn
	b.pubCh = nil
	b.declare = map[string]bool{}
	telemetry.Info("queue.amqp.connected", nil)
	return conn, nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp declare %s: %w", name, err)
	}
	return nil
}

// Publish sends body as a persistent message to the durable queue.
func (b *AMQP) Publish(ctx context.Context, queue string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := b.connectionLocked()
	if err != nil {
		return err
	}
	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := conn.Channel()
		if err != nil {
			return fmt.Errorf("amqp channel: %w", err)
		}
		b.pubCh = ch
		b.declare = map[string]bool{}
	}
	if !b.declare[queue] {
		if err := declareQueue(b.pubCh, queue); err != nil {
			return err
		}
		b.declare[queue] = true
	}
	err = b.pubCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", queue, err)
	}
	return nil
}

// Consume streams deliveries with prefetch 1. Broken connections are re-dialed
// after the backoff until ctx is done.
func (b *AMQP) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	out := make(chan *Delivery)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			if err := b.consumeOnce(ctx, queue, out); err != nil {
				telemetry.Error("queue.amqp.consume_interrupted", map[string]any{
					"queue":   queue,
					"error":   err.Error(),
					"backoff": b.backoff.String(),
				})
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.backoff):
			}
		}
	}()
	return out, nil
}

func (b *AMQP) consumeOnce(ctx context.Context, queue string, out chan<- *Delivery) error {
	conn, err := b.connection()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, queue); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", queue, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("amqp channel closed")
			}
			return amqpErr
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			tag := d.DeliveryTag
			id := d.MessageId
			if id == "" {
				id = strconv.FormatUint(tag, 10)
			}
			msg := NewDelivery(id, d.Body, d.Redelivered,
				func() error { return d.Ack(false) },
				func(requeue bool) error { return d.Nack(false, requeue) },
			)
			select {
			case out <- msg:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return nil
			}
		}
	}
}

// Close shuts the connection down; in-flight deliveries become unacked.
func (b *AMQP) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	return b.conn.Close()
}

var _ Bus = (*AMQP)(nil)
