package ledger

import (
	"context"
	"testing"

	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/storage/testutil"
	"github.com/google/uuid"
)

func ctx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func TestReserveAndByResource(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()

	if err := repo.Reserve(ctx(), taskID, "worker-1", []string{"db-1", "db-2"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	holder, ok, err := repo.ByResource(ctx(), "db-1")
	if err != nil {
		t.Fatalf("ByResource: %v", err)
	}
	if !ok || holder != "worker-1" {
		t.Fatalf("expected worker-1 holding db-1, got holder=%q ok=%v", holder, ok)
	}

	_, ok, err = repo.ByResource(ctx(), "db-unheld")
	if err != nil {
		t.Fatalf("ByResource: %v", err)
	}
	if ok {
		t.Fatalf("expected db-unheld to be unheld")
	}
}

func TestReserveWithNoResourceIDsIsNoOp(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()

	if err := repo.Reserve(ctx(), taskID, "", nil); err != nil {
		t.Fatalf("Reserve with empty resourceIDs should no-op, got %v", err)
	}
	rows, err := repo.ByWorker(ctx(), "")
	if err != nil {
		t.Fatalf("ByWorker: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows inserted for empty resourceIDs, got %d", len(rows))
	}
}

func TestReleaseDeletesAllRowsForTask(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)
	taskID := uuid.New()

	if err := repo.Reserve(ctx(), taskID, "worker-1", []string{"db-1", "db-2", "db-3"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	n, err := repo.Release(ctx(), taskID)
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows released, got %d", n)
	}
	rows, err := repo.ByWorker(ctx(), "worker-1")
	if err != nil {
		t.Fatalf("ByWorker: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no reservations left, got %+v", rows)
	}
}

func TestByResourcesAndReservedWorkerNames(t *testing.T) {
	db := testutil.DB(t)
	repo := NewRepo(db)

	taskA := uuid.New()
	taskB := uuid.New()
	if err := repo.Reserve(ctx(), taskA, "worker-1", []string{"db-1"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := repo.Reserve(ctx(), taskB, "worker-2", []string{"db-2"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	holders, err := repo.ByResources(ctx(), []string{"db-1", "db-2", "db-missing"})
	if err != nil {
		t.Fatalf("ByResources: %v", err)
	}
	if len(holders) != 2 || !holders["worker-1"] || !holders["worker-2"] {
		t.Fatalf("unexpected holder set: %+v", holders)
	}

	names, err := repo.AllReservedWorkerNames(ctx())
	if err != nil {
		t.Fatalf("AllReservedWorkerNames: %v", err)
	}
	if len(names) != 2 || !names["worker-1"] || !names["worker-2"] {
		t.Fatalf("unexpected reserved worker set: %+v", names)
	}
}
