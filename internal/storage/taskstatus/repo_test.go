package taskstatus

import (
	"context"
	"testing"
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/storage/testutil"
	"github.com/google/uuid"
)

func ctx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func TestInsertWaitingAndGet(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()

	if err := repo.InsertWaiting(ctx(), &domain.TaskStatus{TaskID: taskID, TaskType: "demo"}); err != nil {
		t.Fatalf("InsertWaiting: %v", err)
	}

	ts, err := repo.Get(ctx(), taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateWaiting {
		t.Fatalf("expected waiting, got %s", ts.State)
	}

	if _, err := repo.Get(ctx(), uuid.New()); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertRunningFromMissingRow(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()
	now := time.Now().UTC()

	if err := repo.UpsertRunning(ctx(), taskID, "demo", "worker-1", now); err != nil {
		t.Fatalf("UpsertRunning: %v", err)
	}
	ts, err := repo.Get(ctx(), taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateRunning || ts.WorkerName != "worker-1" {
		t.Fatalf("unexpected row: %+v", ts)
	}
}

func TestUpsertRunningRefreshesWorkerNameWithoutRegression(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()
	now := time.Now().UTC()

	if err := repo.InsertWaiting(ctx(), &domain.TaskStatus{TaskID: taskID, TaskType: "demo"}); err != nil {
		t.Fatalf("InsertWaiting: %v", err)
	}
	if err := repo.UpsertRunning(ctx(), taskID, "demo", "worker-1", now); err != nil {
		t.Fatalf("UpsertRunning: %v", err)
	}
	// A second, retried pickup by a different worker name should still refresh
	// worker_name/start_time even though state is already running (T2).
	later := now.Add(time.Second)
	if err := repo.UpsertRunning(ctx(), taskID, "demo", "worker-2", later); err != nil {
		t.Fatalf("UpsertRunning (2nd): %v", err)
	}
	ts, err := repo.Get(ctx(), taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateRunning {
		t.Fatalf("expected still running, got %s", ts.State)
	}
	if ts.WorkerName != "worker-2" {
		t.Fatalf("expected worker_name refreshed to worker-2, got %s", ts.WorkerName)
	}
}

func TestCompareAndSetStateRefusesTerminalTransitionOut(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()
	now := time.Now().UTC()

	if err := repo.InsertWaiting(ctx(), &domain.TaskStatus{TaskID: taskID, TaskType: "demo"}); err != nil {
		t.Fatalf("InsertWaiting: %v", err)
	}
	ok, err := repo.CompareAndSetState(ctx(), taskID, domain.StateCanceled, map[string]interface{}{"finish_time": now})
	if err != nil || !ok {
		t.Fatalf("expected first cancel to succeed: ok=%v err=%v", ok, err)
	}
	// T1: no transition out of a terminal state, even to a different terminal.
	ok, err = repo.CompareAndSetState(ctx(), taskID, domain.StateFinished, map[string]interface{}{"finish_time": now})
	if err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}
	if ok {
		t.Fatalf("expected second transition to be refused, already terminal")
	}
	ts, err := repo.Get(ctx(), taskID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ts.State != domain.StateCanceled {
		t.Fatalf("expected state to remain canceled, got %s", ts.State)
	}
}

func TestIncompleteForWorker(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	now := time.Now().UTC()

	running := uuid.New()
	finished := uuid.New()
	if err := repo.UpsertRunning(ctx(), running, "demo", "worker-1", now); err != nil {
		t.Fatalf("UpsertRunning: %v", err)
	}
	if err := repo.UpsertRunning(ctx(), finished, "demo", "worker-1", now); err != nil {
		t.Fatalf("UpsertRunning: %v", err)
	}
	if _, err := repo.CompareAndSetState(ctx(), finished, domain.StateFinished, map[string]interface{}{"finish_time": now}); err != nil {
		t.Fatalf("CompareAndSetState: %v", err)
	}

	rows, err := repo.IncompleteForWorker(ctx(), "worker-1")
	if err != nil {
		t.Fatalf("IncompleteForWorker: %v", err)
	}
	if len(rows) != 1 || rows[0].TaskID != running {
		t.Fatalf("expected only the running task, got %+v", rows)
	}
}
