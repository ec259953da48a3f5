// Package workerruntime is the Worker Runtime of spec.md §4.4: the per-task
// lifecycle hooks run on every message picked off a worker's own broker inbox.
// Grounded directly on the teacher's jobs/worker.Worker.runLoop (claim →
// dispatch → heartbeat → panic recovery → safety-net fail), re-keyed from
// "claim one DB row" to "consume one message from my dedicated inbox".
package workerruntime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fernlabs/reservecore/internal/broker"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/google/uuid"
)

type Runtime struct {
	br          broker.Broker
	led         *ledger.Ledger
	store       *taskstatus.Store
	registry    *Registry
	log         *logger.Logger
	queue       string
	consumerID  string
	workDirRoot string
	profiler    *Profiler

	mu       sync.Mutex
	inFlight map[uuid.UUID]context.CancelFunc
}

func New(br broker.Broker, led *ledger.Ledger, store *taskstatus.Store, registry *Registry, log *logger.Logger, queue, consumerID, workDirRoot string, profiler *Profiler) *Runtime {
	return &Runtime{
		br:          br,
		led:         led,
		store:       store,
		registry:    registry,
		log:         log.With("service", "WorkerRuntime", "worker_name", queue),
		queue:       queue,
		consumerID:  consumerID,
		workDirRoot: workDirRoot,
		profiler:    profiler,
		inFlight:    map[uuid.UUID]context.CancelFunc{},
	}
}

// Run blocks, consuming and acting on messages from this worker's own inbox,
// until ctx is canceled. A second goroutine listens for broker revoke signals
// so a handler whose task is canceled mid-run has its JobContext canceled too
// (spec.md §4.6 step 4, "revoke-with-terminate").
func (r *Runtime) Run(ctx context.Context) error {
	revocations, err := r.br.Revocations(ctx, r.consumerID)
	if err != nil {
		return fmt.Errorf("workerruntime: subscribe to revocations: %w", err)
	}
	go r.watchRevocations(ctx, revocations)

	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := r.br.Consume(ctx, r.queue, r.consumerID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			r.log.Warn("inbox consume error", "error", err.Error())
			continue
		}
		r.handle(ctx, d)
		if err := r.br.Ack(ctx, d); err != nil {
			r.log.Error("failed to ack inbox message", "error", err.Error())
		}
	}
}

// watchRevocations cancels the JobContext of whichever in-flight task a
// terminate-revoke names. Signals for tasks this worker isn't running (wrong
// worker, already finished) are simply ignored.
func (r *Runtime) watchRevocations(ctx context.Context, revocations <-chan broker.RevokeSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-revocations:
			if !ok {
				return
			}
			if !sig.Terminate {
				continue
			}
			r.mu.Lock()
			cancel, found := r.inFlight[sig.TaskID]
			r.mu.Unlock()
			if found {
				r.log.Info("revoke-with-terminate received for in-flight task", "task_id", sig.TaskID.String())
				cancel()
			}
		}
	}
}

func (r *Runtime) registerInFlight(taskID uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	r.inFlight[taskID] = cancel
	r.mu.Unlock()
}

func (r *Runtime) clearInFlight(taskID uuid.UUID) {
	r.mu.Lock()
	delete(r.inFlight, taskID)
	r.mu.Unlock()
}

func (r *Runtime) handle(ctx context.Context, d broker.Delivery) {
	msg, err := broker.DecodeJobMessage(d.Payload)
	if err != nil {
		r.log.Error("undecodable inbox message, dropping", "error", err.Error())
		return
	}
	switch msg.Kind {
	case broker.JobKindRelease:
		r.handleRelease(ctx, msg)
	case broker.JobKindWork:
		r.handleWork(ctx, msg)
	default:
		r.log.Error("unknown job message kind, dropping", "kind", string(msg.Kind), "task_id", msg.TaskID.String())
	}
}

// handleRelease implements the release job spec.md §4.3 "Dispatch" enqueues
// right after the real job: drop every reservation row for the task, and if
// it somehow never reached a terminal state, apply the PLP0049 defensive
// error transition (spec.md §7, §9).
func (r *Runtime) handleRelease(ctx context.Context, msg broker.JobMessage) {
	dbc := dbctx.Context{Ctx: ctx}
	if _, err := r.led.Release(dbc, msg.TaskID); err != nil {
		r.log.Error("release: failed to clear reservations", "task_id", msg.TaskID.String(), "error", err.Error())
	}
	marked, err := r.store.MarkReleasedWhileRunning(dbc, msg.TaskID, time.Now().UTC())
	if err != nil {
		r.log.Error("release: defensive running check failed", "task_id", msg.TaskID.String(), "error", err.Error())
		return
	}
	if marked {
		r.log.Error("PLP0049: task still running at release, marked errored", "task_id", msg.TaskID.String())
	}
}

// handleWork implements spec.md §4.4 steps 1-6.
func (r *Runtime) handleWork(ctx context.Context, msg broker.JobMessage) {
	dbc := dbctx.Context{Ctx: ctx}

	canceled, err := r.store.IsCanceledBeforeStart(dbc, msg.TaskID)
	if err != nil {
		r.log.Error("failed to check cancel-before-start", "task_id", msg.TaskID.String(), "error", err.Error())
		return
	}
	if canceled {
		r.log.Info("task already canceled, skipping run", "task_id", msg.TaskID.String())
		return
	}

	now := time.Now().UTC()
	if err := r.store.BeginRunning(dbc, msg.TaskID, msg.JobName, r.queue, now); err != nil {
		r.log.Error("failed to upsert running state", "task_id", msg.TaskID.String(), "error", err.Error())
		return
	}

	workDir := r.prepareWorkingDir(msg.TaskID.String())
	defer r.cleanupWorkingDir(workDir)

	h, ok := r.registry.Get(msg.JobName)
	if !ok {
		r.fail(ctx, msg.TaskID, fmt.Errorf("workerruntime: no handler registered for job_name=%s", msg.JobName))
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	r.registerInFlight(msg.TaskID, cancel)
	defer func() {
		r.clearInFlight(msg.TaskID)
		cancel()
	}()

	jc := &JobContext{Ctx: taskCtx, TaskID: msg.TaskID, JobName: msg.JobName, Args: msg.Args, Kwargs: msg.Kwargs, WorkingDir: workDir}
	// ctx (not taskCtx) backs the post-handler status writes below, so a
	// revoke-triggered cancellation of the handler's own context doesn't also
	// poison the on_success/on_failure database calls that record the outcome.
	r.runHandler(ctx, h, jc)
}

func (r *Runtime) runHandler(ctx context.Context, h Handler, jc *JobContext) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("handler panic", "task_id", jc.TaskID.String(), "job_name", jc.JobName, "panic", rec, "stack", string(debug.Stack()))
			r.fail(ctx, jc.TaskID, fmt.Errorf("workerruntime: handler panic: %v", rec))
		}
	}()

	var out any
	var runErr error
	profile := func() { out, runErr = h.Run(jc) }
	if r.profiler != nil {
		r.profiler.Wrap(jc.TaskID.String(), profile)
	} else {
		profile()
	}

	if runErr != nil {
		r.fail(ctx, jc.TaskID, runErr)
		return
	}
	r.succeed(ctx, jc.TaskID, out)
}

func (r *Runtime) succeed(ctx context.Context, taskID uuid.UUID, out any) {
	dbc := dbctx.Context{Ctx: ctx}
	outcome := taskstatus.Outcome{}
	if tr, ok := out.(*TaskResult); ok {
		if tr.Result != nil {
			if b, err := json.Marshal(tr.Result); err == nil {
				outcome.Result = b
			}
		}
		if len(tr.SpawnedTasks) > 0 {
			if b, err := json.Marshal(tr.SpawnedTasks); err == nil {
				outcome.SpawnedTasks = b
			}
		}
	} else if out != nil {
		if b, err := json.Marshal(out); err == nil {
			outcome.Result = b
		}
	}
	ok, err := r.store.Finish(dbc, taskID, outcome, time.Now().UTC())
	if err != nil {
		r.log.Error("failed to record success", "task_id", taskID.String(), "error", err.Error())
		return
	}
	if !ok {
		r.log.Info("task already terminal at success, not overwritten", "task_id", taskID.String())
	}
}

func (r *Runtime) fail(ctx context.Context, taskID uuid.UUID, runErr error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()

	var coded *CodedError
	var traceback string
	if errors.As(runErr, &coded) {
		r.log.Info("task failed with coded exception", "task_id", taskID.String(), "code", coded.Code)
	} else {
		traceback = string(debug.Stack())
		r.log.Error("task failed", "task_id", taskID.String(), "error", runErr.Error(), "traceback", traceback)
	}

	ok, err := r.store.Fail(dbc, taskID, runErr.Error(), traceback, now)
	if err != nil {
		r.log.Error("failed to record failure", "task_id", taskID.String(), "error", err.Error())
		return
	}
	if !ok {
		r.log.Info("task already terminal at failure, not overwritten", "task_id", taskID.String())
	}
}

func (r *Runtime) prepareWorkingDir(taskID string) string {
	if r.workDirRoot == "" {
		return ""
	}
	dir := filepath.Join(r.workDirRoot, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.log.Warn("failed to create per-task working directory", "task_id", taskID, "error", err.Error())
		return ""
	}
	return dir
}

func (r *Runtime) cleanupWorkingDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		r.log.Warn("failed to clean up per-task working directory", "dir", dir, "error", err.Error())
	}
}
