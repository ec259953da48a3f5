// Package cancellation implements spec.md §4.6 cancel(task_id, revoke_task):
// the single entry point every caller (control plane, worker-death recovery,
// an operator) uses to stop a task, cooperative and idempotent against races
// with the worker's own finishing hooks.
package cancellation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/google/uuid"
)

// ErrMissingTask is returned when the task id names no TaskStatus row at all
// (spec.md §4.6 step 1, "missing-resource error").
var ErrMissingTask = errors.New("cancellation: no such task")

// agentWorkerName marks a task executed out-of-band on a remote consumer
// rather than one of this system's own workers (spec.md §4.6 step 3).
const agentWorkerName = "agent"

// ConsumerAgentManager is the out-of-band forwarding target for tasks whose
// worker_name is "agent" — this system has no consumer-agent transport of its
// own, so it is a narrow interface any deployment can satisfy.
type ConsumerAgentManager interface {
	CancelOnConsumer(ctx context.Context, consumerID string, taskID uuid.UUID) error
}

type Canceler struct {
	store  *taskstatus.Store
	br     broker.Broker
	agents ConsumerAgentManager
	log    *logger.Logger
}

func New(store *taskstatus.Store, br broker.Broker, agents ConsumerAgentManager, log *logger.Logger) *Canceler {
	return &Canceler{store: store, br: br, agents: agents, log: log.With("service", "Cancellation")}
}

// Cancel implements spec.md §4.6 in full, including the revoke_task=false path
// used by worker-death recovery (there is nothing left at the broker to revoke
// once the worker is already gone).
func (c *Canceler) Cancel(ctx context.Context, taskID uuid.UUID, revokeTask bool) error {
	dbc := dbctx.Context{Ctx: ctx}
	ts, err := c.store.Get(dbc, taskID)
	if errors.Is(err, taskstatus.ErrNotFound) {
		return ErrMissingTask
	}
	if err != nil {
		return err
	}
	if ts.State.IsTerminal() {
		c.log.Info("cancel on already-terminal task, no-op", "task_id", taskID.String(), "state", string(ts.State))
		return nil
	}

	if ts.WorkerName == agentWorkerName {
		consumerID, tagErr := extractConsumerID(ts.Tags)
		if tagErr != nil {
			return tagErr
		}
		if c.agents == nil {
			return errors.New("cancellation: task routed to an agent consumer but no agent manager is configured")
		}
		if err := c.agents.CancelOnConsumer(ctx, consumerID, taskID); err != nil {
			return err
		}
	} else if revokeTask {
		if err := c.br.Revoke(ctx, taskID, true); err != nil {
			c.log.Warn("broker revoke failed, proceeding to cancel the status row anyway", "task_id", taskID.String(), "error", err.Error())
		}
	}

	ok, err := c.store.Cancel(dbc, taskID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race to a finishing hook — the task reached a terminal state
		// between our Get and this CAS. Idempotent from the caller's view.
		c.log.Info("cancel lost race to a finishing hook", "task_id", taskID.String())
	}
	return nil
}

func extractConsumerID(tags []byte) (string, error) {
	if len(tags) == 0 {
		return "", errors.New("cancellation: agent task has no tags to extract a consumer id from")
	}
	var parsed []string
	if err := json.Unmarshal(tags, &parsed); err != nil {
		return "", errors.New("cancellation: agent task tags are not a string list")
	}
	// Tags are "type:id" pairs (spec.md §6); the consumer id lives on the tag
	// whose type is "consumer", matching tasks.py's
	// tag_dict.get(RESOURCE_CONSUMER_TYPE).
	const consumerType = "consumer"
	for _, tag := range parsed {
		typ, id, ok := strings.Cut(tag, ":")
		if ok && typ == consumerType {
			return id, nil
		}
	}
	return "", errors.New("cancellation: agent task tags carry no consumer_id")
}
