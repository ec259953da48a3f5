// cmd/resourcemanager runs the singleton placement dispatcher: it acquires the
// resource-manager lease, then consumes the reservation-request queue for as
// long as it holds the lease, stepping down cleanly if another instance takes
// over (spec.md §4.3 "Singleton semantics").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fernlabs/reservecore/internal/broker/redisbroker"
	"github.com/fernlabs/reservecore/internal/config"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
	"github.com/fernlabs/reservecore/internal/resourcemanager"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
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
	leaseRepo := storagelease.NewRepo(db)

	hostname, _ := os.Hostname()
	holder := fmt.Sprintf("%s@%s", cfg.ResourceManagerPrefix, hostname)

	lease := resourcemanager.NewLease(leaseRepo, log, "resource_manager", holder, cfg.LeaseTTL, cfg.LeaseRenewInterval)
	mgr := resourcemanager.New(br, led, reg, log, cfg.ResourceManagerQueue, holder, cfg.PlacementRetryWait)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		if err := lease.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error("failed to acquire resource-manager lease", "error", err.Error())
			continue
		}

		runCtx, cancelRun := context.WithCancel(ctx)
		g, gctx := errgroup.WithContext(runCtx)
		g.Go(func() error { defer cancelRun(); return lease.Hold(gctx) })
		g.Go(func() error { return mgr.Run(gctx) })

		_ = g.Wait()
		cancelRun()
	}

	log.Info("resource manager shutting down", "holder", holder)
}
