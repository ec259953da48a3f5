// Package resourcemanager is the singleton placement dispatcher of spec.md
// §4.3: the sole consumer of the reservation-request queue, responsible for
// choosing a worker for each request, writing the reservation rows, and
// forwarding the real job plus its trailing release job to that worker's inbox.
package resourcemanager

import (
	"context"
	"time"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
)

type Manager struct {
	br         broker.Broker
	led        *ledger.Ledger
	reg        *registry.Registry
	log        *logger.Logger
	queue      string
	retryWait  time.Duration
	consumerID string
}

func New(br broker.Broker, led *ledger.Ledger, reg *registry.Registry, log *logger.Logger, queue, consumerID string, retryWait time.Duration) *Manager {
	return &Manager{
		br:         br,
		led:        led,
		reg:        reg,
		log:        log.With("service", "ResourceManager"),
		queue:      queue,
		retryWait:  retryWait,
		consumerID: consumerID,
	}
}

// Run blocks, dispatching one reservation request at a time, until ctx is
// canceled. Exactly one Manager should hold the active lease while running.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := m.br.Consume(ctx, m.queue, m.consumerID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.log.Warn("reservation queue consume error", "error", err.Error())
			continue
		}
		if err := m.handle(ctx, d); err != nil {
			m.log.Error("failed to dispatch reservation request", "error", err.Error())
			continue
		}
		if err := m.br.Ack(ctx, d); err != nil {
			m.log.Error("failed to ack reservation request", "error", err.Error())
		}
	}
}

func (m *Manager) handle(ctx context.Context, d broker.Delivery) error {
	req, err := broker.DecodeReservationRequest(d.Payload)
	if err != nil {
		return err
	}
	dbc := dbctx.Context{Ctx: ctx}

	var workerName string
	if req.Multi() {
		workerName, err = placeWithRetry(ctx, func() (string, error) {
			return placeMulti(dbc, m.led, m.reg, req.ResourceIDs)
		}, m.retryWait)
	} else {
		workerName, err = placeWithRetry(ctx, func() (string, error) {
			return placeSingle(dbc, m.led, m.reg, req.ResourceID)
		}, m.retryWait)
	}
	if err != nil {
		return err
	}

	if err := m.led.Reserve(dbc, req.TaskID, workerName, req.All()); err != nil {
		return err
	}
	m.log.Info("task placed", "task_id", req.TaskID.String(), "worker_name", workerName)

	work := broker.JobMessage{Kind: broker.JobKindWork, TaskID: req.TaskID, JobName: req.JobName, Args: req.Args, Kwargs: req.Kwargs}
	workPayload, err := broker.EncodeJobMessage(work)
	if err != nil {
		return err
	}
	if err := m.br.Publish(ctx, workerName, workPayload); err != nil {
		return err
	}

	release := broker.JobMessage{Kind: broker.JobKindRelease, TaskID: req.TaskID}
	releasePayload, err := broker.EncodeJobMessage(release)
	if err != nil {
		return err
	}
	// Enqueued right after the work message on the same FIFO queue, so it is
	// guaranteed to run only once the real job has been consumed (spec.md §4.3
	// "Dispatch": "so release runs strictly after the real job on the same
	// FIFO queue").
	return m.br.Publish(ctx, workerName, releasePayload)
}
