// Package taskstatus is the domain-logic half of the Task-Status Store (spec.md
// §4.4): the state machine rules layered on top of the durable repo — upserts,
// terminal guards, and the finishing/canceling transitions described in §3.
package taskstatus

import (
	"time"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	storage "github.com/fernlabs/reservecore/internal/storage/taskstatus"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

var ErrNotFound = storage.ErrNotFound

type Store struct {
	repo storage.Repo
}

func New(repo storage.Repo) *Store {
	return &Store{repo: repo}
}

// Insert creates the initial waiting row for a newly-submitted task (spec.md
// §4.6 step 2). It is a plain insert, not an upsert: it fails with a
// duplicate-key error if a row for taskID already exists.
func (s *Store) Insert(dbc dbctx.Context, taskID uuid.UUID, taskType string, tags, groupID string) error {
	ts := &domain.TaskStatus{
		TaskID:   taskID,
		TaskType: taskType,
		GroupID:  groupID,
	}
	if tags != "" {
		ts.Tags = datatypes.JSON(tags)
	}
	return s.repo.InsertWaiting(dbc, ts)
}

// Get loads a task's status row.
func (s *Store) Get(dbc dbctx.Context, taskID uuid.UUID) (*domain.TaskStatus, error) {
	return s.repo.Get(dbc, taskID)
}

// MarkPublishFailed transitions a freshly-inserted task straight to error when
// the producer's broker publish raises (spec.md §4.6 step 4).
func (s *Store) MarkPublishFailed(dbc dbctx.Context, taskID uuid.UUID, publishErr error) error {
	now := time.Now().UTC()
	_, err := s.repo.CompareAndSetState(dbc, taskID, domain.StateError, map[string]interface{}{
		"error":       publishErr.Error(),
		"finish_time": now,
	})
	return err
}

// BeginRunning is the worker runtime's upsert before executing a job body
// (spec.md §4.4 steps 1-2): state only flips to running if the row is missing
// or still waiting, but worker_name/start_time are refreshed unconditionally so
// a retried pickup always reflects the worker that is actually running it.
func (s *Store) BeginRunning(dbc dbctx.Context, taskID uuid.UUID, taskType, workerName string, now time.Time) error {
	return s.repo.UpsertRunning(dbc, taskID, taskType, workerName, now)
}

// IsCanceledBeforeStart reports whether taskID is already canceled, the signal
// the worker runtime checks before running a job body at all (spec.md §4.4
// step 1, the cancel-before-start path). A missing row is not cancellation —
// it is a producer/worker race the caller must tolerate by proceeding.
func (s *Store) IsCanceledBeforeStart(dbc dbctx.Context, taskID uuid.UUID) (bool, error) {
	ts, err := s.repo.Get(dbc, taskID)
	if err == storage.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ts.State == domain.StateCanceled, nil
}

// Finish applies the on_success hook: transitions to finished unless the row is
// already terminal (preserving a late cancel), setting finish_time/result and,
// if present, spawned_tasks.
func (s *Store) Finish(dbc dbctx.Context, taskID uuid.UUID, out Outcome, now time.Time) (bool, error) {
	updates := map[string]interface{}{"finish_time": now}
	if out.Result != nil {
		updates["result"] = datatypes.JSON(out.Result)
	}
	if out.SpawnedTasks != nil {
		updates["spawned_tasks"] = datatypes.JSON(out.SpawnedTasks)
	}
	return s.repo.CompareAndSetState(dbc, taskID, nextOnSuccess, updates)
}

// Fail applies the on_failure hook: transitions to error unless the row is
// already terminal, recording error and (for uncoded exceptions) traceback.
func (s *Store) Fail(dbc dbctx.Context, taskID uuid.UUID, errMsg, traceback string, now time.Time) (bool, error) {
	updates := map[string]interface{}{
		"finish_time": now,
		"error":       errMsg,
	}
	if traceback != "" {
		updates["traceback"] = traceback
	}
	return s.repo.CompareAndSetState(dbc, taskID, nextOnFailure, updates)
}

// Cancel flips taskID to canceled conditional on its current state not being
// terminal — a single atomic update that interlocks with Finish/Fail (spec.md
// §4.4.1 step 5): whichever side's update lands first wins, and the loser's
// write is silently dropped by the WHERE-clause guard. Invariant T3 excludes
// `finish_time` from a cancel-before-start, so a still-waiting task is canceled
// with no finish_time set; a task that already reached running gets one like
// any other terminal transition. The read-then-CAS is not itself atomic — a
// concurrent BeginRunning between the two can still leave finish_time unset for
// a task that started a moment after this read, which is the same class of
// race the CAS guard already tolerates on the losing side.
func (s *Store) Cancel(dbc dbctx.Context, taskID uuid.UUID, now time.Time) (bool, error) {
	ts, err := s.repo.Get(dbc, taskID)
	if err != nil {
		return false, err
	}
	updates := map[string]interface{}{}
	if ts.State != domain.StateWaiting {
		updates["finish_time"] = now
	}
	return s.repo.CompareAndSetState(dbc, taskID, nextOnCancel, updates)
}

// MarkReleasedWhileRunning is the PLP0049 defensive branch run from inside the
// release job (spec.md §7, §9 REDESIGN note): if a task is still running after
// its release message reaches the front of the worker's inbox, something upstream
// skipped a finishing transition. This marks it errored and logs loudly rather
// than leaving it running forever with no reservation backing it.
func (s *Store) MarkReleasedWhileRunning(dbc dbctx.Context, taskID uuid.UUID, now time.Time) (bool, error) {
	ts, err := s.repo.Get(dbc, taskID)
	if err != nil {
		return false, err
	}
	if ts.State != domain.StateRunning {
		return false, nil
	}
	return s.repo.CompareAndSetState(dbc, taskID, nextOnFailure, map[string]interface{}{
		"finish_time": now,
		"error":       "PLP0049: task released while still running",
	})
}

// IncompleteForWorker returns every non-terminal task currently assigned to
// workerName, for worker-death recovery (spec.md §4.5).
func (s *Store) IncompleteForWorker(dbc dbctx.Context, workerName string) ([]domain.TaskStatus, error) {
	return s.repo.IncompleteForWorker(dbc, workerName)
}
