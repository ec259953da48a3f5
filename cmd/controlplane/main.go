// cmd/controlplane runs the operator-facing HTTP admin API (task lookup,
// cancellation, worker listing, reservation lookup) described in SPEC_FULL's
// component design section.
package main

import (
	"os"

	"github.com/fernlabs/reservecore/internal/broker/redisbroker"
	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/config"
	"github.com/fernlabs/reservecore/internal/controlplane"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/registry"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	storageregistry "github.com/fernlabs/reservecore/internal/storage/registry"
	storagetaskstatus "github.com/fernlabs/reservecore/internal/storage/taskstatus"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
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
	canceler := cancellation.New(status, br, nil, log)

	h := controlplane.NewHandler(status, canceler, reg, led)
	router := controlplane.NewRouter(h)

	log.Info("control plane listening", "addr", cfg.ControlPlaneAddr)
	if err := router.Run(cfg.ControlPlaneAddr); err != nil {
		log.Fatal("control plane server exited", "error", err.Error())
	}
}
