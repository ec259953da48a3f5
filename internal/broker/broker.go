// Package broker is the transport abstraction spec.md §4.6/§5 calls a "broker
// inbox": one named FIFO queue per worker (plus the resource-manager and
// scheduler's own queues), at-least-once delivery with late-ack, and a
// best-effort revoke/terminate signal routed by task id.
package broker

import (
	"context"

	"github.com/google/uuid"
)

// Delivery is one message pulled off an inbox, not yet acknowledged. The
// consumer must call Ack once the message's effects (e.g. a finished task
// transition) are durable — crashing before Ack means the broker redelivers it,
// which is why every handler in this codebase is written to tolerate replays.
type Delivery struct {
	ID      string
	Queue   string
	Payload []byte
}

// Broker is the dispatch core's entire dependency on the underlying transport.
// Queues are opaque names the caller constructs (e.g. a worker's own name, or
// the resource-manager/scheduler's dedicated queue from config).
type Broker interface {
	// Publish enqueues payload onto queue. Routing is by queue name alone — there
	// is no exchange/topic fan-out, mirroring the dedicated per-worker exchange
	// semantics of spec.md §9 ("DEDICATED_QUEUE_EXCHANGE").
	Publish(ctx context.Context, queue string, payload []byte) error
	// Consume waits for a message on queue until ctx is done. An implementation
	// may also return without a message when its own poll window runs out
	// (redisbroker returns context.DeadlineExceeded after its 2s block), so
	// callers call it again after an error.
	Consume(ctx context.Context, queue, consumerName string) (Delivery, error)
	// Ack acknowledges a delivery, removing it from the queue's pending-retry set.
	Ack(ctx context.Context, d Delivery) error
	// Revoke asks whichever consumer currently holds taskID's work to stop. This
	// is best-effort: if the worker already finished, or never saw the message,
	// Revoke is a no-op from the broker's point of view (spec.md §6 "termination
	// is best-effort, typically maps to a signal").
	Revoke(ctx context.Context, taskID uuid.UUID, terminate bool) error
	// Revocations returns a channel of task ids the caller should interrupt, for
	// a worker to select on alongside its own inbox consume loop.
	Revocations(ctx context.Context, consumerName string) (<-chan RevokeSignal, error)
}

// RevokeSignal is one inbound cancel-with-terminate request.
type RevokeSignal struct {
	TaskID    uuid.UUID
	Terminate bool
}
