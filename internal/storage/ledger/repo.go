// Package ledger is the storage-layer half of the Reservation Ledger (spec.md §4.1):
// a durable (task_id, resource_id) -> worker_name mapping, indexed both ways.
package ledger

import (
	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo interface {
	// Reserve inserts one row per resourceID, all for the same (taskID, workerName).
	// It is all-or-nothing: on any failure partway through the batch, every row
	// already inserted for this call is rolled back.
	Reserve(dbc dbctx.Context, taskID uuid.UUID, workerName string, resourceIDs []string) error
	// Release deletes every row for taskID. Returns the number of rows deleted.
	Release(dbc dbctx.Context, taskID uuid.UUID) (int64, error)
	// ByResource returns the worker holding resourceID, if any.
	ByResource(dbc dbctx.Context, resourceID string) (string, bool, error)
	// ByResources returns the distinct set of workers holding any of resourceIDs.
	ByResources(dbc dbctx.Context, resourceIDs []string) (map[string]bool, error)
	// ByWorker returns every reservation row held by workerName.
	ByWorker(dbc dbctx.Context, workerName string) ([]domain.ReservedResource, error)
	// AllReservedWorkerNames returns the distinct set of worker names holding at
	// least one reservation, for the "unreserved eligible worker" placement check.
	AllReservedWorkerNames(dbc dbctx.Context) (map[string]bool, error)
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

func (r *repo) Reserve(dbc dbctx.Context, taskID uuid.UUID, workerName string, resourceIDs []string) error {
	if len(resourceIDs) == 0 {
		return nil
	}
	rows := make([]domain.ReservedResource, 0, len(resourceIDs))
	for _, rid := range resourceIDs {
		rows = append(rows, domain.ReservedResource{
			TaskID:     taskID,
			WorkerName: workerName,
			ResourceID: rid,
		})
	}
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		return txx.Create(&rows).Error
	})
}

func (r *repo) Release(dbc dbctx.Context, taskID uuid.UUID) (int64, error) {
	res := r.tx(dbc).Where("task_id = ?", taskID).Delete(&domain.ReservedResource{})
	return res.RowsAffected, res.Error
}

func (r *repo) ByResource(dbc dbctx.Context, resourceID string) (string, bool, error) {
	var row domain.ReservedResource
	err := r.tx(dbc).Where("resource_id = ?", resourceID).Limit(1).Find(&row).Error
	if err != nil {
		return "", false, err
	}
	if row.ID == 0 {
		return "", false, nil
	}
	return row.WorkerName, true, nil
}

func (r *repo) ByResources(dbc dbctx.Context, resourceIDs []string) (map[string]bool, error) {
	if len(resourceIDs) == 0 {
		return map[string]bool{}, nil
	}
	var names []string
	if err := r.tx(dbc).Model(&domain.ReservedResource{}).
		Where("resource_id IN ?", resourceIDs).
		Distinct("worker_name").
		Pluck("worker_name", &names).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

func (r *repo) ByWorker(dbc dbctx.Context, workerName string) ([]domain.ReservedResource, error) {
	var out []domain.ReservedResource
	if err := r.tx(dbc).Where("worker_name = ?", workerName).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) AllReservedWorkerNames(dbc dbctx.Context) (map[string]bool, error) {
	var names []string
	if err := r.tx(dbc).Model(&domain.ReservedResource{}).
		Distinct("worker_name").
		Pluck("worker_name", &names).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}
