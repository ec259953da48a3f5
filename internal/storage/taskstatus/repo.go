// Package taskstatus is the storage-layer half of the Task-Status Store (spec.md §3,
// §4.4, §4.7): the durable lifecycle record, written concurrently by producers,
// workers, and cancellers, resolved by upserts and a terminal-state CAS guard.
package taskstatus

import (
	"errors"
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("taskstatus: not found")

type Repo interface {
	// InsertWaiting creates a new TaskStatus row in state "waiting". Fails with a
	// duplicate-key error if task_id already exists (callers generate fresh ids,
	// so this should only race on a genuine retry of the same publish).
	InsertWaiting(dbc dbctx.Context, ts *domain.TaskStatus) error
	// Get loads a TaskStatus by id.
	Get(dbc dbctx.Context, taskID uuid.UUID) (*domain.TaskStatus, error)
	// UpsertRunning sets state=running (only if the row is missing or still
	// waiting), and unconditionally refreshes start_time/worker_name — satisfying
	// both halves of invariant T2 and the replication-lag tolerance of spec.md §4.4.
	UpsertRunning(dbc dbctx.Context, taskID uuid.UUID, taskType, workerName string, now time.Time) error
	// UpdateUnlessTerminal applies updates to taskID's row only if its current
	// state is not terminal. Returns whether the update took effect.
	UpdateUnlessTerminal(dbc dbctx.Context, taskID uuid.UUID, updates map[string]interface{}) (bool, error)
	// CompareAndSetState sets state to next only if the current state is not
	// terminal, as a single atomic update — the interlock cancel() relies on.
	CompareAndSetState(dbc dbctx.Context, taskID uuid.UUID, next domain.State, updates map[string]interface{}) (bool, error)
	// IncompleteForWorker returns every non-terminal TaskStatus row currently
	// assigned to workerName, for worker-death recovery.
	IncompleteForWorker(dbc dbctx.Context, workerName string) ([]domain.TaskStatus, error)
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

func (r *repo) InsertWaiting(dbc dbctx.Context, ts *domain.TaskStatus) error {
	now := time.Now().UTC()
	ts.State = domain.StateWaiting
	ts.CreatedAt = now
	ts.UpdatedAt = now
	return r.tx(dbc).Create(ts).Error
}

func (r *repo) Get(dbc dbctx.Context, taskID uuid.UUID) (*domain.TaskStatus, error) {
	var ts domain.TaskStatus
	err := r.tx(dbc).Where("task_id = ?", taskID).Limit(1).Find(&ts).Error
	if err != nil {
		return nil, err
	}
	if ts.TaskID == uuid.Nil {
		return nil, ErrNotFound
	}
	return &ts, nil
}

func (r *repo) UpsertRunning(dbc dbctx.Context, taskID uuid.UUID, taskType, workerName string, now time.Time) error {
	return r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		var existing domain.TaskStatus
		err := txx.Where("task_id = ?", taskID).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if existing.TaskID == uuid.Nil {
			return txx.Create(&domain.TaskStatus{
				TaskID:     taskID,
				TaskType:   taskType,
				State:      domain.StateRunning,
				WorkerName: workerName,
				StartTime:  &now,
				CreatedAt:  now,
				UpdatedAt:  now,
			}).Error
		}
		updates := map[string]interface{}{
			"worker_name": workerName,
			"start_time":  now,
			"updated_at":  now,
		}
		if existing.State == domain.StateWaiting {
			updates["state"] = domain.StateRunning
		}
		return txx.Model(&domain.TaskStatus{}).
			Where("task_id = ?", taskID).
			Updates(updates).Error
	})
}

func (r *repo) UpdateUnlessTerminal(dbc dbctx.Context, taskID uuid.UUID, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.tx(dbc).Model(&domain.TaskStatus{}).
		Where("task_id = ? AND state NOT IN ?", taskID, terminalStates()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CompareAndSetState(dbc dbctx.Context, taskID uuid.UUID, next domain.State, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["state"] = next
	updates["updated_at"] = time.Now().UTC()
	res := r.tx(dbc).Model(&domain.TaskStatus{}).
		Where("task_id = ? AND state NOT IN ?", taskID, terminalStates()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) IncompleteForWorker(dbc dbctx.Context, workerName string) ([]domain.TaskStatus, error) {
	var out []domain.TaskStatus
	if err := r.tx(dbc).Where("worker_name = ? AND state NOT IN ?", workerName, terminalStates()).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func terminalStates() []domain.State {
	return []domain.State{
		domain.StateFinished,
		domain.StateError,
		domain.StateCanceled,
		domain.StateTimedOut,
		domain.StateSkipped,
	}
}
