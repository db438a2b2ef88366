package queue

import (
	"context"
	"strconv"
	"sync"
)

// Memory is an in-process bus for dev runs and tests.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	seq    int
	acked  map[string]int
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{queues: map[string]chan []byte{}, acked: map[string]int{}}
}

func (m *Memory) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, 256)
		m.queues[name] = q
	}
	return q
}

// Publish enqueues body.
func (m *Memory) Publish(ctx context.Context, queue string, body []byte) error {
	select {
	case m.queue(queue) <- append([]byte(nil), body...):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume streams queued bodies until ctx is done.
func (m *Memory) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	q := m.queue(queue)
	out := make(chan *Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case body := <-q:
				m.mu.Lock()
				m.seq++
				id := strconv.Itoa(m.seq)
				m.mu.Unlock()
				d := NewDelivery(id, body, false,
					func() error {
						m.mu.Lock()
						m.acked[queue]++
						m.mu.Unlock()
						return nil
					},
					func(requeue bool) error {
						if requeue {
							q <- body
						}
						return nil
					},
				)
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Pending returns the bodies waiting on queue without consuming them.
func (m *Memory) Pending(queue string) [][]byte {
	q := m.queue(queue)
	var out [][]byte
	for {
		select {
		case body := <-q:
			out = append(out, body)
		default:
			for _, body := range out {
				q <- body
			}
			return out
		}
	}
}

// Pop removes and returns the oldest body waiting on queue.
func (m *Memory) Pop(queue string) ([]byte, bool) {
	select {
	case body := <-m.queue(queue):
		return body, true
	default:
		return nil, false
	}
}

// Acked returns how many deliveries were acked on queue.
func (m *Memory) Acked(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked[queue]
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

var _ Bus = (*Memory)(nil)
