// Package fakebroker is an in-memory internal/broker.Broker for tests. It is
// never wired into cmd/ — production always talks to Redis via
// internal/broker/redisbroker.
package fakebroker

import (
	"context"
	"sync"
	"time"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/google/uuid"
)

type Broker struct {
	mu        sync.Mutex
	queues    map[string][]broker.Delivery
	nextID    int
	revokeSub []chan broker.RevokeSignal
}

func New() *Broker {
	return &Broker{queues: map[string][]broker.Delivery{}}
}

func (b *Broker) Publish(ctx context.Context, queue string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.queues[queue] = append(b.queues[queue], broker.Delivery{
		ID:      intToID(b.nextID),
		Queue:   queue,
		Payload: payload,
	})
	return nil
}

// Consume polls queue until a message is available or ctx is done. A short
// poll interval is acceptable here — this implementation exists only to drive
// deterministic tests against internal/broker.Broker, never production traffic.
func (b *Broker) Consume(ctx context.Context, queue, consumerName string) (broker.Delivery, error) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		b.mu.Lock()
		if len(b.queues[queue]) > 0 {
			d := b.queues[queue][0]
			b.queues[queue] = b.queues[queue][1:]
			b.mu.Unlock()
			return d, nil
		}
		b.mu.Unlock()
		select {
		case <-ctx.Done():
			return broker.Delivery{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Broker) Ack(ctx context.Context, d broker.Delivery) error {
	return nil
}

func (b *Broker) Revoke(ctx context.Context, taskID uuid.UUID, terminate bool) error {
	b.mu.Lock()
	subs := append([]chan broker.RevokeSignal{}, b.revokeSub...)
	b.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- broker.RevokeSignal{TaskID: taskID, Terminate: terminate}:
		default:
		}
	}
	return nil
}

func (b *Broker) Revocations(ctx context.Context, consumerName string) (<-chan broker.RevokeSignal, error) {
	ch := make(chan broker.RevokeSignal, 8)
	b.mu.Lock()
	b.revokeSub = append(b.revokeSub, ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
	}()
	return ch, nil
}

// QueueLen reports how many undelivered messages queue currently holds, for
// assertions in tests.
func (b *Broker) QueueLen(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func intToID(n int) string {
	digits := []byte{}
	if n == 0 {
		return "0"
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
