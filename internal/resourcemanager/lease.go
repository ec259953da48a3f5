package resourcemanager

import (
	"context"
	"time"

	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
)

// Lease is the singleton-holder guard from spec.md §4.3 "Singleton semantics":
// exactly one Resource Manager process consumes the dedicated queue at a time.
// Failover is lease-expiry based — any standby may take over once renewals stop.
type Lease struct {
	repo     storagelease.Repo
	log      *logger.Logger
	role     string
	holder   string
	ttl      time.Duration
	interval time.Duration
}

func NewLease(repo storagelease.Repo, log *logger.Logger, role, holder string, ttl, renewInterval time.Duration) *Lease {
	return &Lease{repo: repo, log: log.With("lease_role", role), role: role, holder: holder, ttl: ttl, interval: renewInterval}
}

// Acquire blocks, retrying at the renew interval, until this holder takes the
// lease or ctx is canceled. A storage error ends the wait and is returned.
func (l *Lease) Acquire(ctx context.Context) error {
	for {
		dbc := dbctx.Context{Ctx: ctx}
		ok, err := l.repo.Acquire(dbc, l.role, l.holder, l.ttl)
		if err != nil {
			return err
		}
		if ok {
			l.log.Info("lease acquired", "holder", l.holder)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
}

// Hold runs a renewal ticker until ctx is canceled or a renewal is rejected
// (another holder took over after this lease's TTL lapsed), in which case Hold
// returns so the caller can stop acting as the active singleton.
func (l *Lease) Hold(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dbc := dbctx.Context{Ctx: ctx}
			ok, err := l.repo.Renew(dbc, l.role, l.holder)
			if err != nil {
				l.log.Error("lease renewal failed", "error", err.Error())
				continue
			}
			if !ok {
				l.log.Warn("lost lease, stepping down", "holder", l.holder)
				return nil
			}
		}
	}
}

// Release gives up the lease explicitly, e.g. on graceful shutdown.
func (l *Lease) Release(ctx context.Context) error {
	return l.repo.Release(dbctx.Context{Ctx: ctx}, l.role, l.holder)
}
