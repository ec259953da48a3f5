package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/fernlabs/reservecore/internal/platform/dbctx"
)

func TestSweeperInvokesOnDeathOncePerStaleWorker(t *testing.T) {
	reg := newTestRegistry(t)
	now := time.Now().UTC()
	if err := reg.Heartbeat(ctx(), "worker-stale", now.Add(-time.Hour)); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := reg.Heartbeat(ctx(), "worker-fresh", now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	var mu sync.Mutex
	var seen []string
	sweeper := NewSweeper(reg, func(dbc dbctx.Context, workerName string) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, workerName)
		return nil
	}, time.Minute, time.Minute)

	if err := sweeper.sweepOnce(ctx().Ctx); err != nil {
		t.Fatalf("sweepOnce: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "worker-stale" {
		t.Fatalf("expected only worker-stale swept, got %+v", seen)
	}
}
