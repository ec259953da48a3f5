// cmd/worker runs one Worker Runtime process: it announces itself in the
// Worker Registry, consumes its own dedicated inbox queue (spec.md §4.4), and
// deregisters cleanly on shutdown. Concrete job handlers are registered
// against the workerruntime.Registry before Run is called — this binary ships
// none of its own, since the dispatch core is domain-agnostic; an embedding
// application wires its handlers in here the way the teacher's own
// jobs/runtime.NewRegistry wires its pipeline handlers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fernlabs/reservecore/internal/broker/redisbroker"
	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/config"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storagelease "github.com/fernlabs/reservecore/internal/storage/lease"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
	storagetaskstatus "github.com/fernlabs/reservecore/internal/storage/taskstatus"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/fernlabs/reservecore/internal/workerdeath"
	"github.com/fernlabs/reservecore/internal/workerruntime"
	"github.com/google/uuid"
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

	hostname, _ := os.Hostname()
	workerName := fmt.Sprintf("%s-%s-%s", cfg.WorkerNamePrefix, hostname, uuid.NewString()[:8])
	if reg.IsReservedName(workerName) {
		log.Fatal("computed worker name collides with a reserved prefix", "worker_name", workerName)
	}

	jobRegistry := workerruntime.NewRegistry()
	// Embedding applications register their Handler implementations against
	// jobRegistry here, before Run starts consuming.

	profiler := workerruntime.NewProfiler(cfg.ProfilingEnabled, cfg.ProfilingDirectory, log)
	runtime := workerruntime.New(br, led, status, jobRegistry, log, workerName, workerName, cfg.WorkDirRoot, profiler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbc := dbctx.Context{Ctx: ctx}
	if err := reg.Heartbeat(dbc, workerName, time.Now().UTC()); err != nil {
		log.Fatal("failed to announce worker", "worker_name", workerName, "error", err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runtime.Run(gctx) })
	g.Go(func() error { return heartbeatLoop(gctx, reg, workerName, cfg.HeartbeatInterval, log) })

	<-ctx.Done()
	log.Info("worker shutting down, deregistering", "worker_name", workerName)

	// Use a fresh background context for shutdown bookkeeping: ctx is already
	// canceled, and draining the registry entry plus recovering in-flight
	// reservations must still complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := recovery.Recover(shutdownCtx, workerName, true); err != nil {
		log.Error("graceful shutdown recovery failed", "worker_name", workerName, "error", err.Error())
	}

	_ = g.Wait()
}

// heartbeatLoop keeps this worker's registry row fresh so the scheduler's
// missing-heartbeat sweeper never mistakes a live worker for a dead one.
func heartbeatLoop(ctx context.Context, reg *registry.Registry, workerName string, interval time.Duration, log *logger.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			dbc := dbctx.Context{Ctx: ctx}
			if err := reg.Heartbeat(dbc, workerName, time.Now().UTC()); err != nil {
				log.Warn("heartbeat failed", "worker_name", workerName, "error", err.Error())
			}
		}
	}
}
