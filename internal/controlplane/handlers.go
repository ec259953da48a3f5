// Package controlplane is the operator-facing HTTP admin surface (expansion):
// read-only status/worker/reservation lookups plus the one mutating action
// (cancel) the spec's external interfaces expose to a human. It never bypasses
// the lifecycle invariants — every handler calls the same store/Canceler
// methods the resource manager and workers call. Grounded on the teacher's
// handlers.JobsHandler + response envelope.
package controlplane

import (
	"errors"
	"net/http"

	"github.com/fernlabs/reservecore/internal/cancellation"
	"github.com/fernlabs/reservecore/internal/ledger"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	"github.com/fernlabs/reservecore/internal/registry"
	"github.com/fernlabs/reservecore/internal/taskstatus"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	status   *taskstatus.Store
	cancel   *cancellation.Canceler
	registry *registry.Registry
	ledger   *ledger.Ledger
}

func NewHandler(status *taskstatus.Store, cancel *cancellation.Canceler, reg *registry.Registry, led *ledger.Ledger) *Handler {
	return &Handler{status: status, cancel: cancel, registry: reg, ledger: led}
}

// GET /healthz
func (h *Handler) Healthz(c *gin.Context) {
	RespondOK(c, gin.H{"status": "ok"})
}

// GET /tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	ts, err := h.status.Get(dbctx.Context{Ctx: c.Request.Context()}, taskID)
	if errors.Is(err, taskstatus.ErrNotFound) {
		RespondError(c, http.StatusNotFound, "task_not_found", err)
		return
	}
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "task_lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"task": ts})
}

// POST /tasks/:id/cancel
func (h *Handler) CancelTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	revoke := c.DefaultQuery("revoke_task", "true") != "false"
	if err := h.cancel.Cancel(c.Request.Context(), taskID, revoke); err != nil {
		if errors.Is(err, cancellation.ErrMissingTask) {
			RespondError(c, http.StatusNotFound, "task_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "cancel_failed", err)
		return
	}
	RespondOK(c, gin.H{"task_id": taskID, "canceled": true})
}

// GET /workers
func (h *Handler) ListWorkers(c *gin.Context) {
	workers, err := h.registry.Online(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "worker_list_failed", err)
		return
	}
	RespondOK(c, gin.H{"workers": workers})
}

// GET /reservations?resource=<resource_id>
func (h *Handler) GetReservation(c *gin.Context) {
	resourceID := c.Query("resource")
	if resourceID == "" {
		RespondError(c, http.StatusBadRequest, "missing_resource", errors.New("resource query param required"))
		return
	}
	holder, ok, err := h.ledger.HolderOf(dbctx.Context{Ctx: c.Request.Context()}, resourceID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "reservation_lookup_failed", err)
		return
	}
	if !ok {
		RespondOK(c, gin.H{"resource": resourceID, "reserved": false})
		return
	}
	RespondOK(c, gin.H{"resource": resourceID, "reserved": true, "worker_name": holder})
}
