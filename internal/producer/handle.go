package producer

import (
	"context"

	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/google/uuid"
)

// Handle is returned to the caller of apply_async_with_reservation (spec.md
// §4.7 step 5): a thin carrier of task_id for polling, deliberately without
// any in-process result channel — status lives only in the store.
type Handle struct {
	TaskID uuid.UUID
	store  *taskstatus.Store
}

// Status polls the current TaskStatus row for this handle's task.
func (h Handle) Status(ctx context.Context) (*domain.TaskStatus, error) {
	return h.store.Get(dbctx.Context{Ctx: ctx}, h.TaskID)
}
