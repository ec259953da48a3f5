package resourcemanager

import (
	"context"
	"testing"
	"time"

	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/registry"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
	"github.com/fernlabs/reservecore/internal/storage/testutil"
	"github.com/google/uuid"
)

func ctx() dbctx.Context {
	return dbctx.Context{Ctx: context.Background()}
}

func newFixture(t *testing.T) (*ledger.Ledger, *registry.Registry) {
	db := testutil.DB(t)
	led := ledger.New(storageledger.NewRepo(db))
	reg := registry.New(storageregistry.NewRepo(db), testutil.Logger(t), "resource_manager", "scheduler")
	return led, reg
}

func TestPlaceSingleHolderWins(t *testing.T) {
	led, reg := newFixture(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-1", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := reg.Heartbeat(ctx(), "worker-2", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := led.Reserve(ctx(), uuid.New(), "worker-1", []string{"db-1"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	name, err := placeSingle(ctx(), led, reg, "db-1")
	if err != nil {
		t.Fatalf("placeSingle: %v", err)
	}
	if name != "worker-1" {
		t.Fatalf("expected reuse of the existing holder, got %s", name)
	}
}

func TestPlaceSingleUnheldPicksUnreservedEligible(t *testing.T) {
	led, reg := newFixture(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-1", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	// worker-1 already holds some other, unrelated resource.
	if err := led.Reserve(ctx(), uuid.New(), "worker-1", []string{"db-other"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := reg.Heartbeat(ctx(), "worker-2", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	name, err := placeSingle(ctx(), led, reg, "db-unheld")
	if err != nil {
		t.Fatalf("placeSingle: %v", err)
	}
	if name != "worker-2" {
		t.Fatalf("expected the unreserved worker-2, got %s", name)
	}
}

func TestPlaceSingleNoEligibleWorkerRetries(t *testing.T) {
	led, reg := newFixture(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-1", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := led.Reserve(ctx(), uuid.New(), "worker-1", []string{"db-other"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	_, err := placeSingle(ctx(), led, reg, "db-unheld")
	if err != errNoEligibleWorker {
		t.Fatalf("expected errNoEligibleWorker, got %v", err)
	}
}

func TestPlaceMultiReuseWhenSingleHolder(t *testing.T) {
	led, reg := newFixture(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-1", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := led.Reserve(ctx(), uuid.New(), "worker-1", []string{"db-1", "db-2"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	name, err := placeMulti(ctx(), led, reg, []string{"db-1", "db-2", "db-3"})
	if err != nil {
		t.Fatalf("placeMulti: %v", err)
	}
	if name != "worker-1" {
		t.Fatalf("expected reuse of the sole holder worker-1, got %s", name)
	}
}

func TestPlaceMultiConflictWhenTwoHolders(t *testing.T) {
	led, reg := newFixture(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-1", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := reg.Heartbeat(ctx(), "worker-2", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := led.Reserve(ctx(), uuid.New(), "worker-1", []string{"db-1"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := led.Reserve(ctx(), uuid.New(), "worker-2", []string{"db-2"}); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	_, err := placeMulti(ctx(), led, reg, []string{"db-1", "db-2"})
	if err != errConflict {
		t.Fatalf("expected errConflict, got %v", err)
	}
}

func TestPlaceWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	name, err := placeWithRetry(context.Background(), func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errNoEligibleWorker
		}
		return "worker-1", nil
	}, time.Millisecond)
	if err != nil {
		t.Fatalf("placeWithRetry: %v", err)
	}
	if name != "worker-1" {
		t.Fatalf("expected worker-1, got %s", name)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestPlaceWithRetryStopsOnContextCancel(t *testing.T) {
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := placeWithRetry(cctx, func() (string, error) {
		return "", errNoEligibleWorker
	}, time.Millisecond)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
