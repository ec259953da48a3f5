package domain

import (
	"strings"
	"time"
)

// Worker is a row in the Worker Registry: a process currently online and consuming
// from its own dedicated broker inbox. Created on first heartbeat, deleted by the
// missing-heartbeat sweeper or on graceful shutdown.
type Worker struct {
	Name        string    `gorm:"column:name;primaryKey" json:"name"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;not null;index" json:"last_seen_at"`
	RegisteredAt time.Time `gorm:"column:registered_at;not null" json:"registered_at"`
}

func (Worker) TableName() string { return "workers" }

// ReservedPrefix returns true if name carries one of the reserved role prefixes
// (resource-manager or scheduler) that must never be chosen for user work. The
// match is prefix-based, not exact, because the host suffix appended to a role
// name varies per deployment (e.g. "resource_manager@host-1").
func ReservedPrefix(name, resourceManagerPrefix, schedulerPrefix string) bool {
	return (resourceManagerPrefix != "" && strings.HasPrefix(name, resourceManagerPrefix)) ||
		(schedulerPrefix != "" && strings.HasPrefix(name, schedulerPrefix))
}
