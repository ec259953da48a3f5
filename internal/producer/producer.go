// Package producer implements spec.md §4.7, the task status producer path:
// apply_async_with_reservation / apply_async_with_reservation_list, modeled on
// the teacher's services.JobService.Enqueue.
package producer

import (
	"context"
	"encoding/json"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/fernlabs/reservecore/internal/codec"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/google/uuid"
)

type Producer struct {
	store               *taskstatus.Store
	br                  broker.Broker
	log                 *logger.Logger
	resourceManagerQueue string
}

func New(store *taskstatus.Store, br broker.Broker, log *logger.Logger, resourceManagerQueue string) *Producer {
	return &Producer{store: store, br: br, log: log.With("service", "Producer"), resourceManagerQueue: resourceManagerQueue}
}

// ApplyAsyncWithReservation publishes the single-resource reservation-request
// form (spec.md §4.3 "single-resource request").
func (p *Producer) ApplyAsyncWithReservation(ctx context.Context, jobName, taskType, resourceID string, args, kwargs codec.Value, tags []string, groupID string) (Handle, error) {
	return p.submit(ctx, jobName, taskType, groupID, tags, args, kwargs, func(taskID uuid.UUID) broker.ReservationRequest {
		return broker.ReservationRequest{JobName: jobName, TaskID: taskID, ResourceID: resourceID, Args: args, Kwargs: kwargs, Tags: tags, GroupID: groupID}
	})
}

// ApplyAsyncWithReservationList publishes the multi-resource reservation-request
// form (spec.md §4.3 "multi-resource request").
func (p *Producer) ApplyAsyncWithReservationList(ctx context.Context, jobName, taskType string, resourceIDs []string, args, kwargs codec.Value, tags []string, groupID string) (Handle, error) {
	return p.submit(ctx, jobName, taskType, groupID, tags, args, kwargs, func(taskID uuid.UUID) broker.ReservationRequest {
		return broker.ReservationRequest{JobName: jobName, TaskID: taskID, ResourceIDs: resourceIDs, Args: args, Kwargs: kwargs, Tags: tags, GroupID: groupID}
	})
}

func (p *Producer) submit(ctx context.Context, jobName, taskType, groupID string, tags []string, args, kwargs codec.Value, build func(uuid.UUID) broker.ReservationRequest) (Handle, error) {
	taskID := uuid.New()
	dbc := dbctx.Context{Ctx: ctx}

	var tagsJSON string
	if len(tags) > 0 {
		if b, err := json.Marshal(tags); err == nil {
			tagsJSON = string(b)
		}
	}
	if err := p.store.Insert(dbc, taskID, taskType, tagsJSON, groupID); err != nil {
		return Handle{}, err
	}

	req := build(taskID)
	payload, err := broker.EncodeReservationRequest(req)
	if err != nil {
		_ = p.store.MarkPublishFailed(dbc, taskID, err)
		return Handle{}, err
	}
	if err := p.br.Publish(ctx, p.resourceManagerQueue, payload); err != nil {
		p.log.Error("publish failed, marking task errored", "task_id", taskID.String(), "job_name", jobName, "error", err.Error())
		if markErr := p.store.MarkPublishFailed(dbc, taskID, err); markErr != nil {
			p.log.Error("failed to mark publish-failed task as errored", "task_id", taskID.String(), "error", markErr.Error())
		}
		return Handle{}, err
	}

	return Handle{TaskID: taskID, store: p.store}, nil
}
