// Package workerdeath implements spec.md §4.5 worker-death recovery: what
// happens once the registry sweeper (or an explicit shutdown notice) declares
// a worker gone.
package workerdeath

import (
	"context"

	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/google/uuid"
)

type Recovery struct {
	reg    *registry.Registry
	led    *ledger.Ledger
	status *taskstatus.Store
	leases storagelease.Repo
	cancel *cancellation.Canceler
	log    *logger.Logger
}

func New(reg *registry.Registry, led *ledger.Ledger, status *taskstatus.Store, leases storagelease.Repo, cancel *cancellation.Canceler, log *logger.Logger) *Recovery {
	return &Recovery{reg: reg, led: led, status: status, leases: leases, cancel: cancel, log: log.With("service", "WorkerDeathRecovery")}
}

// Recover runs the four steps of spec.md §4.5 for one dead worker name. graceful
// distinguishes a clean shutdown notice (logged at info) from an abrupt
// heartbeat lapse (logged at error); the mechanics are identical either way.
func (r *Recovery) Recover(ctx context.Context, workerName string, graceful bool) error {
	dbc := dbctx.Context{Ctx: ctx}

	if graceful {
		r.log.Info("worker shut down, recovering", "worker_name", workerName)
	} else {
		r.log.Error("worker missing heartbeat, recovering", "worker_name", workerName)
	}

	if err := r.reg.Leave(dbc, workerName); err != nil {
		return err
	}

	// Release(taskID) is the ledger's only delete primitive (spec.md §4.1), so a
	// per-worker cleanup means releasing every distinct task that worker held a
	// reservation under.
	reservations, err := r.led.ReservationsOf(dbc, workerName)
	if err != nil {
		return err
	}
	released := map[uuid.UUID]bool{}
	for _, res := range reservations {
		if released[res.TaskID] {
			continue
		}
		released[res.TaskID] = true
		if _, err := r.led.Release(dbc, res.TaskID); err != nil {
			return err
		}
	}

	if r.reg.IsReservedName(workerName) {
		if err := r.leases.DeleteHeldBy(dbc, workerName); err != nil {
			return err
		}
	}

	incomplete, err := r.status.IncompleteForWorker(dbc, workerName)
	if err != nil {
		return err
	}
	for _, ts := range incomplete {
		if err := r.cancel.Cancel(ctx, ts.TaskID, false); err != nil {
			r.log.Error("failed to cancel task for dead worker", "task_id", ts.TaskID.String(), "worker_name", workerName, "error", err.Error())
		}
	}

	return nil
}
