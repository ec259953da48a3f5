// Package redisbroker implements internal/broker.Broker over Redis Streams:
// one stream per queue, a shared consumer group per queue so at-most-one
// consumer claims each entry, and XACK/XCLAIM for late-ack redelivery. Revoke
// signals ride one pub/sub channel shared by every consumer, generalized from
// the teacher's SSE bus (_teacher_ref/clients_redis/sse_bus.go).
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	groupName       = "reservecore"
	revokeChannel   = "reservecore:revoke"
	blockTimeout    = 2 * time.Second
	claimIdleBefore = 30 * time.Second
)

type Broker struct {
	rdb *goredis.Client
	log *logger.Logger
}

func New(rdb *goredis.Client, log *logger.Logger) *Broker {
	return &Broker{rdb: rdb, log: log.With("service", "RedisBroker")}
}

func (b *Broker) ensureGroup(ctx context.Context, queue string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, queue, groupName, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("redis: create consumer group for %q: %w", queue, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func (b *Broker) Publish(ctx context.Context, queue string, payload []byte) error {
	if err := b.ensureGroup(ctx, queue); err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &goredis.XAddArgs{
		Stream: queue,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
}

func (b *Broker) Consume(ctx context.Context, queue, consumerName string) (broker.Delivery, error) {
	if err := b.ensureGroup(ctx, queue); err != nil {
		return broker.Delivery{}, err
	}
	if d, ok, err := b.claimStale(ctx, queue, consumerName); err != nil {
		return broker.Delivery{}, err
	} else if ok {
		return d, nil
	}

	res, err := b.rdb.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    groupName,
		Consumer: consumerName,
		Streams:  []string{queue, ">"},
		Count:    1,
		Block:    blockTimeout,
	}).Result()
	if errors.Is(err, goredis.Nil) {
		return broker.Delivery{}, context.DeadlineExceeded
	}
	if err != nil {
		return broker.Delivery{}, err
	}
	for _, stream := range res {
		for _, msg := range stream.Messages {
			return deliveryFromMessage(queue, msg), nil
		}
	}
	return broker.Delivery{}, context.DeadlineExceeded
}

// claimStale takes over any pending entry idle past claimIdleBefore — the
// redelivery path for a consumer that crashed after XREADGROUP but before
// XACK. Handlers throughout this codebase are written to tolerate replays.
func (b *Broker) claimStale(ctx context.Context, queue, consumerName string) (broker.Delivery, bool, error) {
	msgs, _, err := b.rdb.XAutoClaim(ctx, &goredis.XAutoClaimArgs{
		Stream:   queue,
		Group:    groupName,
		Consumer: consumerName,
		MinIdle:  claimIdleBefore,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NOGROUP") {
			return broker.Delivery{}, false, nil
		}
		return broker.Delivery{}, false, err
	}
	if len(msgs) == 0 {
		return broker.Delivery{}, false, nil
	}
	return deliveryFromMessage(queue, msgs[0]), true, nil
}

func deliveryFromMessage(queue string, msg goredis.XMessage) broker.Delivery {
	var payload []byte
	if raw, ok := msg.Values["payload"]; ok {
		switch v := raw.(type) {
		case string:
			payload = []byte(v)
		case []byte:
			payload = v
		}
	}
	return broker.Delivery{ID: msg.ID, Queue: queue, Payload: payload}
}

func (b *Broker) Ack(ctx context.Context, d broker.Delivery) error {
	return b.rdb.XAck(ctx, d.Queue, groupName, d.ID).Err()
}

type revokeWire struct {
	TaskID    string `json:"task_id"`
	Terminate bool   `json:"terminate"`
}

func (b *Broker) Revoke(ctx context.Context, taskID uuid.UUID, terminate bool) error {
	raw, err := json.Marshal(revokeWire{TaskID: taskID.String(), Terminate: terminate})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, revokeChannel, raw).Err()
}

func (b *Broker) Revocations(ctx context.Context, consumerName string) (<-chan broker.RevokeSignal, error) {
	sub := b.rdb.Subscribe(ctx, revokeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe revoke channel: %w", err)
	}

	out := make(chan broker.RevokeSignal)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var wire revokeWire
				if err := json.Unmarshal([]byte(m.Payload), &wire); err != nil {
					b.log.Warn("bad revoke payload", "error", err.Error())
					continue
				}
				taskID, err := uuid.Parse(wire.TaskID)
				if err != nil {
					b.log.Warn("bad revoke task id", "error", err.Error())
					continue
				}
				select {
				case out <- broker.RevokeSignal{TaskID: taskID, Terminate: wire.Terminate}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
