package domain

import "github.com/google/uuid"

// ReservedResource is a durable claim (task_id, worker_name, resource_id). Multiple
// rows may share a task_id (a multi-resource job) or a worker_name (a worker holding
// several resources across several tasks). Inserted by the Resource Manager at
// placement time; deleted by the release step or by worker-death recovery.
//
// Invariant R1: worker_name names a worker that was online at insertion time.
// Invariant R2: the referenced task is in a non-terminal state, or a cleanup is pending.
type ReservedResource struct {
	ID         uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TaskID     uuid.UUID `gorm:"column:task_id;type:uuid;not null;index:idx_reserved_resource_task" json:"task_id"`
	WorkerName string    `gorm:"column:worker_name;not null;index:idx_reserved_resource_worker" json:"worker_name"`
	ResourceID string    `gorm:"column:resource_id;not null;index:idx_reserved_resource_resource" json:"resource_id"`
}

func (ReservedResource) TableName() string { return "reserved_resources" }
