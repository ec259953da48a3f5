package domain

import "time"

// Lease is a singleton-holder row: "I am the active resource manager / scheduler".
// Role is one of "resource_manager" or "scheduler"; Holder is the same name used in
// the Worker Registry for that role. Deleting the row (graceful shutdown, or the
// missing-heartbeat sweeper treating the holder as dead) lets another candidate
// acquire the lease.
type Lease struct {
	Role      string    `gorm:"column:role;primaryKey" json:"role"`
	Holder    string    `gorm:"column:holder;not null" json:"holder"`
	RenewedAt time.Time `gorm:"column:renewed_at;not null" json:"renewed_at"`
}

func (Lease) TableName() string { return "leases" }

const (
	RoleResourceManager = "resource_manager"
	RoleScheduler       = "scheduler"
)
