package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// State is one node of the task-status state machine described in spec.md §3.
type State string

const (
	StateWaiting   State = "waiting"
	StateRunning   State = "running"
	StateFinished  State = "finished"
	StateError     State = "error"
	StateCanceled  State = "canceled"
	StateTimedOut  State = "timed_out"
	StateSkipped   State = "skipped"
)

// Terminal is the set of states from which no further transition is allowed (T1).
var Terminal = map[State]bool{
	StateFinished: true,
	StateError:    true,
	StateCanceled: true,
	StateTimedOut: true,
	StateSkipped:  true,
}

func (s State) IsTerminal() bool { return Terminal[s] }

// Incomplete is the complement of Terminal, used by worker-death recovery (§4.5) to
// decide which tasks belonging to a dead worker must be canceled.
func Incomplete(s State) bool { return !s.IsTerminal() }

// TaskStatus is the durable lifecycle record for one task. Spawned child task ids are
// stored as a flat list (never nested TaskResult objects — see spec.md §9 "Design Notes").
type TaskStatus struct {
	TaskID       uuid.UUID      `gorm:"column:task_id;type:uuid;primaryKey" json:"task_id"`
	TaskType     string         `gorm:"column:task_type;not null" json:"task_type"`
	State        State          `gorm:"column:state;not null;index" json:"state"`
	WorkerName   string         `gorm:"column:worker_name;index" json:"worker_name,omitempty"`
	Tags         datatypes.JSON `gorm:"column:tags" json:"tags,omitempty"`
	GroupID      string         `gorm:"column:group_id;index" json:"group_id,omitempty"`
	StartTime    *time.Time     `gorm:"column:start_time" json:"start_time,omitempty"`
	FinishTime   *time.Time     `gorm:"column:finish_time" json:"finish_time,omitempty"`
	Result       datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	Traceback    string         `gorm:"column:traceback" json:"traceback,omitempty"`
	SpawnedTasks datatypes.JSON `gorm:"column:spawned_tasks" json:"spawned_tasks,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (TaskStatus) TableName() string { return "task_statuses" }
