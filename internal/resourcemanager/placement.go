package resourcemanager

import (
	"context"
	"fmt"
	"time"

	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/registry"
)

// errNoEligibleWorker is returned internally by one placement attempt when no
// worker can currently take the request — the caller sleeps and retries.
var errNoEligibleWorker = fmt.Errorf("resourcemanager: no eligible worker")

// errConflict is the multi-resource |S| >= 2 case (spec.md §4.3 rule 4): two
// workers already hold subsets of the request, so it cannot be served without
// violating exclusion until one of them finishes.
var errConflict = fmt.Errorf("resourcemanager: conflicting reservation holders")

// placeSingle runs one single-resource placement attempt (spec.md §4.3 "Placement
// rule (single)"). Returns the chosen worker name, or an error the caller
// should treat as "sleep and retry".
func placeSingle(dbc dbctx.Context, led *ledger.Ledger, reg *registry.Registry, resourceID string) (string, error) {
	holder, ok, err := led.HolderOf(dbc, resourceID)
	if err != nil {
		return "", err
	}
	if ok {
		return holder, nil
	}
	return pickUnreservedEligible(dbc, led, reg)
}

// placeMulti runs one multi-resource placement attempt (spec.md §4.3 "Placement
// rule (multi)").
func placeMulti(dbc dbctx.Context, led *ledger.Ledger, reg *registry.Registry, resourceIDs []string) (string, error) {
	holders, err := led.HoldersOf(dbc, resourceIDs)
	if err != nil {
		return "", err
	}
	switch len(holders) {
	case 0:
		return pickUnreservedEligible(dbc, led, reg)
	case 1:
		for name := range holders {
			return name, nil
		}
	}
	return "", errConflict
}

// pickUnreservedEligible returns any online, non-reserved-prefix worker that
// currently holds no reservation at all.
func pickUnreservedEligible(dbc dbctx.Context, led *ledger.Ledger, reg *registry.Registry) (string, error) {
	eligible, err := reg.Eligible(dbc)
	if err != nil {
		return "", err
	}
	reserved, err := led.ReservedWorkers(dbc)
	if err != nil {
		return "", err
	}
	for _, name := range eligible {
		if !reserved[name] {
			return name, nil
		}
	}
	return "", errNoEligibleWorker
}

// placeWithRetry loops placement attempts with a sleep-and-retry after each
// attempt that fails with errNoEligibleWorker or errConflict, until a worker is
// chosen or ctx is canceled; any other error is returned at once (spec.md §4.3:
// "Loop until placed, sleeping 250ms between attempts"; this wait is
// deliberately unbounded — see DESIGN.md's "Multi-resource conflict indefinite
// wait" resolution).
func placeWithRetry(ctx context.Context, attempt func() (string, error), retryWait time.Duration) (string, error) {
	for {
		name, err := attempt()
		if err == nil {
			return name, nil
		}
		if err != errNoEligibleWorker && err != errConflict {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryWait):
		}
	}
}
