// Package registry is the domain-logic half of the Worker Registry (spec.md §4.2):
// who is online, who is eligible to take new placements, and the heartbeat cadence
// that keeps the answer current.
package registry

import (
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/platform/logger"
	"github.com/fernlabs/reservecore/internal/storage/registry"
)

type Registry struct {
	repo                  registry.Repo
	log                   *logger.Logger
	resourceManagerPrefix string
	schedulerPrefix       string
}

func New(repo registry.Repo, log *logger.Logger, resourceManagerPrefix, schedulerPrefix string) *Registry {
	return &Registry{
		repo:                  repo,
		log:                   log,
		resourceManagerPrefix: resourceManagerPrefix,
		schedulerPrefix:       schedulerPrefix,
	}
}

// Heartbeat records that name is alive as of now. Called on worker startup and on
// every heartbeat tick thereafter.
func (r *Registry) Heartbeat(dbc dbctx.Context, name string, now time.Time) error {
	return r.repo.RecordHeartbeat(dbc, name, now)
}

// Leave removes name from the registry, e.g. on graceful shutdown.
func (r *Registry) Leave(dbc dbctx.Context, name string) error {
	return r.repo.Delete(dbc, name)
}

// Online returns every worker currently in the registry.
func (r *Registry) Online(dbc dbctx.Context) ([]domain.Worker, error) {
	return r.repo.Online(dbc)
}

// Eligible returns the names of online workers that may receive new placements —
// everything except workers carrying a reserved resource-manager/scheduler prefix.
func (r *Registry) Eligible(dbc dbctx.Context) ([]string, error) {
	workers, err := r.repo.Online(dbc)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(workers))
	for _, w := range workers {
		if domain.ReservedPrefix(w.Name, r.resourceManagerPrefix, r.schedulerPrefix) {
			continue
		}
		out = append(out, w.Name)
	}
	return out, nil
}

// IsReservedName reports whether name carries a resource-manager/scheduler prefix.
func (r *Registry) IsReservedName(name string) bool {
	return domain.ReservedPrefix(name, r.resourceManagerPrefix, r.schedulerPrefix)
}

// Stale returns the names of workers whose last heartbeat predates now-timeout —
// candidates the sweeper will declare dead.
func (r *Registry) Stale(dbc dbctx.Context, now time.Time, timeout time.Duration) ([]string, error) {
	return r.repo.StaleBefore(dbc, now.Add(-timeout))
}
