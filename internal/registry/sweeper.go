package registry

import (
	"context"
	"time"

	"github.com/fernlabs/reservecore/internal/platform/dbctx"
)

// DeathHandler is invoked once per worker name the sweeper finds stale. It is
// supplied by internal/workerdeath so this package does not need to import the
// recovery logic (which itself depends on registry, ledger, and taskstatus).
type DeathHandler func(dbc dbctx.Context, workerName string) error

// Sweeper periodically scans for workers whose heartbeat has gone quiet and hands
// each one to onDeath exactly once per detected lapse.
type Sweeper struct {
	reg      *Registry
	onDeath  DeathHandler
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(reg *Registry, onDeath DeathHandler, interval, timeout time.Duration) *Sweeper {
	return &Sweeper{reg: reg, onDeath: onDeath, interval: interval, timeout: timeout}
}

// Run blocks, sweeping every interval, until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweepOnce(ctx); err != nil {
				s.reg.log.Error("registry sweep failed", "error", err.Error())
			}
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) error {
	dbc := dbctx.Context{Ctx: ctx}
	now := time.Now().UTC()
	stale, err := s.reg.Stale(dbc, now, s.timeout)
	if err != nil {
		return err
	}
	for _, name := range stale {
		s.reg.log.Warn("worker missing heartbeat, declaring dead", "worker_name", name)
		if err := s.onDeath(dbc, name); err != nil {
			s.reg.log.Error("worker death handling failed", "worker_name", name, "error", err.Error())
		}
	}
	return nil
}
