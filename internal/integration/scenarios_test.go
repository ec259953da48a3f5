// Package integration exercises the named scenarios of spec.md §8 end to end:
// producer -> resource manager -> worker runtime -> ledger/taskstatus, wired
// over the in-memory fakebroker and an in-memory sqlite database, the same
// combination internal/resourcemanager/manager_test.go drives at the
// single-component level.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/fernlabs/reservecore/internal/broker/fakebroker"
	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/codec"
	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/producer"
	"github.com/fernlabs/reservecore/internal/registry"
	"github.com/fernlabs/reservecore/internal/resourcemanager"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
	storagetaskstatus "github.com/fernlabs/reservecore/internal/storage/taskstatus"
	"github.com/fernlabs/reservecore/internal/storage/testutil"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/fernlabs/reservecore/internal/workerdeath"
	"github.com/fernlabs/reservecore/internal/workerruntime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ctx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

type gateHandler struct {
	jobName string
	started chan struct{}
	release chan struct{}
}

func newGateHandler(jobName string) *gateHandler {
	return &gateHandler{jobName: jobName, started: make(chan struct{}), release: make(chan struct{})}
}

func (h *gateHandler) Type() string { return h.jobName }
func (h *gateHandler) Run(jc *workerruntime.JobContext) (any, error) {
	close(h.started)
	<-h.release
	return &workerruntime.TaskResult{Result: map[string]any{"ok": true}}, nil
}

type instantHandler struct{ jobName string }

func (h instantHandler) Type() string { return h.jobName }
func (h instantHandler) Run(jc *workerruntime.JobContext) (any, error) {
	return &workerruntime.TaskResult{Result: map[string]any{"ok": true}}, nil
}

// fixture wires a full placement + execution pipeline over one shared
// in-memory database and broker: a Producer, a Manager under test-scale retry
// timing, and N worker Runtimes each consuming their own named inbox.
type fixture struct {
	t      *testing.T
	db     *gorm.DB
	br     *fakebroker.Broker
	led    *ledger.Ledger
	reg    *registry.Registry
	status *taskstatus.Store
	prod   *producer.Producer
	mgr    *resourcemanager.Manager

	runCtx context.Context
	stop   context.CancelFunc
	done   chan struct{}
}

func newFixture(t *testing.T, workers ...string) *fixture {
	db := testutil.DB(t)
	log := testutil.Logger(t)

	led := ledger.New(storageledger.NewRepo(db))
	reg := registry.New(storageregistry.NewRepo(db), log, "resource_manager", "scheduler")
	status := taskstatus.New(storagetaskstatus.NewRepo(db))
	br := fakebroker.New()
	prod := producer.New(status, br, log, "resource_manager")
	mgr := resourcemanager.New(br, led, reg, log, "resource_manager", "resource_manager@host", 5*time.Millisecond)

	now := time.Now().UTC()
	for _, w := range workers {
		if err := reg.Heartbeat(ctx(), w, now); err != nil {
			t.Fatalf("Heartbeat(%s): %v", w, err)
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	f := &fixture{t: t, db: db, br: br, led: led, reg: reg, status: status, prod: prod, mgr: mgr, runCtx: runCtx, stop: stop}
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		_ = mgr.Run(runCtx)
	}()
	return f
}

func (f *fixture) startWorker(name string, handlers ...workerruntime.Handler) {
	jobReg := workerruntime.NewRegistry()
	for _, h := range handlers {
		if err := jobReg.Register(h); err != nil {
			f.t.Fatalf("Register: %v", err)
		}
	}
	rt := workerruntime.New(f.br, f.led, f.status, jobReg, testutil.Logger(f.t), name, name, "", workerruntime.NewProfiler(false, "", testutil.Logger(f.t)))
	go func() { _ = rt.Run(f.runCtx) }()
}

func (f *fixture) teardown() {
	f.stop()
	<-f.done
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// Scenario 1: single reservation, happy path.
func TestScenarioSingleReservationHappyPath(t *testing.T) {
	f := newFixture(t, "w1", "w2")
	defer f.teardown()
	f.startWorker("w1", instantHandler{jobName: "demo_job"})
	f.startWorker("w2", instantHandler{jobName: "demo_job"})

	handle, err := f.prod.ApplyAsyncWithReservation(context.Background(), "demo_job", "demo", "repo:a", codec.Null(), codec.Null(), nil, "")
	if err != nil {
		t.Fatalf("ApplyAsyncWithReservation: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		ts, err := f.status.Get(ctx(), handle.TaskID)
		return err == nil && ts.State == domain.StateFinished
	})

	holder, ok, err := f.led.HolderOf(ctx(), "repo:a")
	if err != nil {
		t.Fatalf("HolderOf: %v", err)
	}
	if ok {
		t.Fatalf("expected the ledger to be empty once the release job ran, still held by %q", holder)
	}
}

// Scenario 2: collapse on same worker — a worker already holding a resource
// wins a new request for that same resource, even if another worker is idle.
func TestScenarioCollapseOnSameWorker(t *testing.T) {
	f := newFixture(t, "w1", "w2")
	defer f.teardown()
	gate := newGateHandler("holds_repo_a")
	f.startWorker("w1", gate, instantHandler{jobName: "demo_job"})
	f.startWorker("w2", instantHandler{jobName: "demo_job"})

	first, err := f.prod.ApplyAsyncWithReservation(context.Background(), "holds_repo_a", "demo", "repo:a", codec.Null(), codec.Null(), nil, "")
	if err != nil {
		t.Fatalf("ApplyAsyncWithReservation: %v", err)
	}
	select {
	case <-gate.started:
	case <-time.After(time.Second):
		t.Fatal("first job never started")
	}

	waitFor(t, time.Second, func() bool {
		holder, ok, _ := f.led.HolderOf(ctx(), "repo:a")
		return ok && holder == "w1"
	})

	second, err := f.prod.ApplyAsyncWithReservation(context.Background(), "demo_job", "demo", "repo:a", codec.Null(), codec.Null(), nil, "")
	if err != nil {
		t.Fatalf("ApplyAsyncWithReservation: %v", err)
	}

	close(gate.release)
	waitFor(t, 2*time.Second, func() bool {
		ts, err := f.status.Get(ctx(), first.TaskID)
		return err == nil && ts.State == domain.StateFinished
	})
	waitFor(t, 2*time.Second, func() bool {
		ts, err := f.status.Get(ctx(), second.TaskID)
		return err == nil && ts.State == domain.StateFinished
	})

	second2, err := f.status.Get(ctx(), second.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second2.WorkerName != "w1" {
		t.Fatalf("expected the second request on repo:a to collapse onto w1 (the holder), got %q", second2.WorkerName)
	}
}

// Scenario 4: cancel running — canceling a task mid-run marks it canceled, and
// the handler's own (eventual) successful return does not overwrite that state.
func TestScenarioCancelRunning(t *testing.T) {
	f := newFixture(t, "w1")
	defer f.teardown()
	gate := newGateHandler("long_job")
	f.startWorker("w1", gate)
	canceler := cancellation.New(f.status, f.br, nil, testutil.Logger(t))

	handle, err := f.prod.ApplyAsyncWithReservation(context.Background(), "long_job", "demo", "repo:a", codec.Null(), codec.Null(), nil, "")
	if err != nil {
		t.Fatalf("ApplyAsyncWithReservation: %v", err)
	}
	select {
	case <-gate.started:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}

	if err := canceler.Cancel(context.Background(), handle.TaskID, true); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	ts, err := f.status.Get(ctx(), handle.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateCanceled {
		t.Fatalf("expected canceled immediately after Cancel, got %s", ts.State)
	}

	// The handler still runs to its own natural completion; on_success must not
	// clobber the canceled state (spec.md §4.4 step 4, §4.6 step 5).
	close(gate.release)
	time.Sleep(100 * time.Millisecond)
	ts, err = f.status.Get(ctx(), handle.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateCanceled {
		t.Fatalf("expected the task to remain canceled after the handler's own completion, got %s", ts.State)
	}
}

// Scenario 5: worker death mid-job — recovering a dead worker drops its
// reservations and cancels its incomplete tasks.
func TestScenarioWorkerDeathMidJob(t *testing.T) {
	f := newFixture(t, "w1")
	defer f.teardown()
	gate := newGateHandler("long_job")
	f.startWorker("w1", gate)
	canceler := cancellation.New(f.status, f.br, nil, testutil.Logger(t))
	leaseRepo := storagelease.NewRepo(f.db)
	recovery := workerdeath.New(f.reg, f.led, f.status, leaseRepo, canceler, testutil.Logger(f.t))

	handle, err := f.prod.ApplyAsyncWithReservation(context.Background(), "long_job", "demo", "repo:a", codec.Null(), codec.Null(), nil, "")
	if err != nil {
		t.Fatalf("ApplyAsyncWithReservation: %v", err)
	}
	select {
	case <-gate.started:
	case <-time.After(time.Second):
		t.Fatal("job never started")
	}
	waitFor(t, time.Second, func() bool {
		_, ok, _ := f.led.HolderOf(ctx(), "repo:a")
		return ok
	})

	if err := recovery.Recover(context.Background(), "w1", false); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if _, ok, _ := f.led.HolderOf(ctx(), "repo:a"); ok {
		t.Fatalf("expected repo:a to be released after worker-death recovery")
	}
	ts, err := f.status.Get(ctx(), handle.TaskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateCanceled {
		t.Fatalf("expected the dead worker's task to be canceled, got %s", ts.State)
	}

	close(gate.release)
}

// Scenario 6: cancel unknown task -> missing-resource error, no writes.
func TestScenarioCancelUnknownTask(t *testing.T) {
	f := newFixture(t)
	defer f.teardown()
	canceler := cancellation.New(f.status, f.br, nil, testutil.Logger(t))

	err := canceler.Cancel(context.Background(), uuid.New(), true)
	if err != cancellation.ErrMissingTask {
		t.Fatalf("expected ErrMissingTask, got %v", err)
	}
}
