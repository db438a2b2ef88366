package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Queue names. Deployments append an environment tag via config.QueueName.
const (
	Classify        = "classify_queue"
	ChapterSplitter = "chapter_splitter_queue"
	Markdown        = "markdown_queue"
	SQLAnswer       = "sql_answer_queue"
	SendMail        = "send_mail_queue"
)

// Publisher sends persistent messages to a durable queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Consumer streams deliveries from a durable queue until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, queue string) (<-chan *Delivery, error)
}

// Bus is a publisher and consumer sharing one connection.
type Bus interface {
	Publisher
	Consumer
	Close() error
}

// Delivery is one received message. Exactly one of Ack or Nack must be called.
type Delivery struct {
	ID          string
	Body        []byte
	Redelivered bool

	once sync.Once
	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery builds a Delivery around transport callbacks.
func NewDelivery(id string, body []byte, redelivered bool, ack func() error, nack func(requeue bool) error) *Delivery {
	return &Delivery{ID: id, Body: body, Redelivered: redelivered, ack: ack, nack: nack}
}

// Ack acknowledges the delivery. Later calls are no-ops.
func (d *Delivery) Ack() error {
	var err error
	d.once.Do(func() {
		if d.ack != nil {
			err = d.ack()
		}
	})
	return err
}

// Nack rejects the delivery, optionally asking the broker to requeue it.
func (d *Delivery) Nack(requeue bool) error {
	var err error
	d.once.Do(func() {
		if d.nack != nil {
			err = d.nack(requeue)
		}
	})
	return err
}

// PublishJSON encodes v and publishes it.
func PublishJSON(ctx context.Context, p Publisher, queue string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", queue, err)
	}
	return p.Publish(ctx, queue, payload)
}
