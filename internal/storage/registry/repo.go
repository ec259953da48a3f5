// Package registry is the storage-layer half of the Worker Registry: durable rows
// behind the online()/record_heartbeat()/delete() contract of spec.md §4.2.
package registry

import (
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"gorm.io/gorm"
)

type Repo interface {
	// RecordHeartbeat upserts a Worker row: inserted on first heartbeat, last_seen_at
	// advanced on every subsequent call.
	RecordHeartbeat(dbc dbctx.Context, name string, ts time.Time) error
	// Online returns every worker currently in the registry.
	Online(dbc dbctx.Context) ([]domain.Worker, error)
	// Delete removes a worker row. No-op if the worker is already gone.
	Delete(dbc dbctx.Context, name string) error
	// StaleBefore returns the names of workers whose last_seen_at predates cutoff —
	// candidates for the missing-heartbeat sweeper.
	StaleBefore(dbc dbctx.Context, cutoff time.Time) ([]string, error)
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) Repo {
	return &repo{db: db}
}

func (r *repo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *repo) RecordHeartbeat(dbc dbctx.Context, name string, ts time.Time) error {
	w := domain.Worker{Name: name, LastSeenAt: ts, RegisteredAt: ts}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		res := txx.Model(&domain.Worker{}).
			Where("name = ?", name).
			Update("last_seen_at", ts)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		// Insert races with a concurrent first heartbeat are possible; a duplicate
		// primary-key error here is treated as a benign loss of that race.
		if err := txx.Create(&w).Error; err != nil {
			return txx.Model(&domain.Worker{}).Where("name = ?", name).Update("last_seen_at", ts).Error
		}
		return nil
	})
}

func (r *repo) Online(dbc dbctx.Context) ([]domain.Worker, error) {
	var out []domain.Worker
	if err := r.tx(dbc).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Delete(dbc dbctx.Context, name string) error {
	return r.tx(dbc).Where("name = ?", name).Delete(&domain.Worker{}).Error
}

func (r *repo) StaleBefore(dbc dbctx.Context, cutoff time.Time) ([]string, error) {
	var names []string
	if err := r.tx(dbc).Model(&domain.Worker{}).
		Where("last_seen_at < ?", cutoff).
		Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}
