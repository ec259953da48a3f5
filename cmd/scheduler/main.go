// cmd/scheduler runs the registry sweeper and worker-death recovery under its
// own singleton lease (spec.md §3 "SchedulerLock", §4.2 "the sweeper runs
// periodically", §4.5 worker-death recovery).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fernlabs/reservecore/internal/broker/redisbroker"
	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/config"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
	"github.com/fernlabs/reservecore/internal/resourcemanager"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	storagetaskstatus "github.com/fernlabs/reservecore/internal/storage/taskstatus"
	"github.com/fernlabs/reservecore/internal/workerdeath"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := config.Load(log)

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err.Error())
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})

	br := redisbroker.New(rdb, log)
	led := ledger.New(storageledger.NewRepo(db))
	reg := registry.New(storageregistry.NewRepo(db), log, cfg.ResourceManagerPrefix, cfg.SchedulerPrefix)
	status := taskstatus.New(storagetaskstatus.NewRepo(db))
	leaseRepo := storagelease.NewRepo(db)

	canceler := cancellation.New(status, br, nil, log)
	recovery := workerdeath.New(reg, led, status, leaseRepo, canceler, log)
	sweeper := registry.NewSweeper(reg, func(dbc dbctx.Context, workerName string) error {
		return recovery.Recover(dbc.Ctx, workerName, false)
	}, cfg.HeartbeatInterval, cfg.MissingTimeout)

	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("%s@%s", cfg.SchedulerPrefix, hostname)
	lease := resourcemanager.NewLease(leaseRepo, log, "scheduler", holder, cfg.LeaseTTL, cfg.LeaseRenewInterval)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		if err := lease.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("failed to acquire scheduler lease", "error", err.Error())
			continue
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { defer cancelRun(); return lease.Hold(gctx) })
		g.Go(func() error { return sweeper.Run(gctx) })

		_ = g.Wait()
		cancelRun()
	}

	log.Info("scheduler shutting down", "holder", holder)
}
