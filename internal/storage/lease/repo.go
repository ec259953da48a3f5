// Package lease is the storage-layer half of the ResourceManagerLock/SchedulerLock
// singleton leases (spec.md §3): "I am the active resource manager / scheduler".
package lease

import (
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"gorm.io/gorm"
)

type Repo interface {
	// Acquire takes role's lease for holder if the role is unheld, already held by
	// holder, or its last renewal predates ttl ago (the prior holder is presumed
	// dead). Returns whether this call now holds the lease.
	Acquire(dbc dbctx.Context, role, holder string, ttl time.Duration) (bool, error)
	// Renew refreshes renewed_at for role, conditional on still being held by holder.
	Renew(dbc dbctx.Context, role, holder string) (bool, error)
	// Release deletes role's lease row, conditional on being held by holder.
	Release(dbc dbctx.Context, role, holder string) error
	// DeleteHeldBy removes any lease currently held by holder, regardless of role —
	// used by worker-death recovery when the dead worker's name matched a reserved
	// prefix.
	DeleteHeldBy(dbc dbctx.Context, holder string) error
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

func (r *repo) Acquire(dbc dbctx.Context, role, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-ttl)
	var acquired bool
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		var existing domain.Lease
		err := txx.Where("role = ?", role).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.Role == "" {
			if err := txx.Create(&domain.Lease{Role: role, Holder: holder, RenewedAt: now}).Error; err != nil {
				return err
			}
			acquired = true
			return nil
		}
		if existing.Holder == holder || existing.RenewedAt.Before(cutoff) {
			res := txx.Model(&domain.Lease{}).
				Where("role = ? AND (holder = ? OR renewed_at < ?)", role, holder, cutoff).
				Updates(map[string]interface{}{"holder": holder, "renewed_at": now})
			if res.Error != nil {
				return res.Error
			}
			acquired = res.RowsAffected > 0
			return nil
		}
		acquired = false
		return nil
	})
	return acquired, err
}

func (r *repo) Renew(dbc dbctx.Context, role, holder string) (bool, error) {
	res := r.tx(dbc).Model(&domain.Lease{}).
		Where("role = ? AND holder = ?", role, holder).
		Update("renewed_at", time.Now().UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Release(dbc dbctx.Context, role, holder string) error {
	return r.tx(dbc).Where("role = ? AND holder = ?", role, holder).Delete(&domain.Lease{}).Error
}

func (r *repo) DeleteHeldBy(dbc dbctx.Context, holder string) error {
	return r.tx(dbc).Where("holder = ?", holder).Delete(&domain.Lease{}).Error
}
