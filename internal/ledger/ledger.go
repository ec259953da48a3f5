// Package ledger is the domain-logic half of the Reservation Ledger (spec.md §4.1):
// the authority on which worker, if any, holds a given resource_id.
package ledger

import (
	"github.com/fernlabs/reservecore/internal/domain"
	"github.com/fernlabs/reservecore/internal/platform/dbctx"
	storageledger "github.com/fernlabs/reservecore/internal/storage/ledger"
	"github.com/google/uuid"
)

type Ledger struct {
	repo storageledger.Repo
}

func New(repo storageledger.Repo) *Ledger {
	return &Ledger{repo: repo}
}

// Reserve records that workerName now holds every resource in resourceIDs on
// behalf of taskID. All-or-nothing.
func (l *Ledger) Reserve(dbc dbctx.Context, taskID uuid.UUID, workerName string, resourceIDs []string) error {
	return l.repo.Reserve(dbc, taskID, workerName, resourceIDs)
}

// Release drops every reservation row held by taskID, e.g. at task completion.
func (l *Ledger) Release(dbc dbctx.Context, taskID uuid.UUID) (int64, error) {
	return l.repo.Release(dbc, taskID)
}

// HolderOf returns the worker holding resourceID, if any.
func (l *Ledger) HolderOf(dbc dbctx.Context, resourceID string) (string, bool, error) {
	return l.repo.ByResource(dbc, resourceID)
}

// HoldersOf returns the distinct set of workers holding any of resourceIDs — used
// by multi-resource placement's |S| cardinality check.
func (l *Ledger) HoldersOf(dbc dbctx.Context, resourceIDs []string) (map[string]bool, error) {
	return l.repo.ByResources(dbc, resourceIDs)
}

// ReservationsOf returns every reservation row held by workerName, e.g. for
// worker-death cleanup.
func (l *Ledger) ReservationsOf(dbc dbctx.Context, workerName string) ([]domain.ReservedResource, error) {
	return l.repo.ByWorker(dbc, workerName)
}

// ReservedWorkers returns the distinct set of worker names currently holding at
// least one reservation — a worker NOT in this set is "unreserved" for placement.
func (l *Ledger) ReservedWorkers(dbc dbctx.Context) (map[string]bool, error) {
	return l.repo.AllReservedWorkerNames(dbc)
}
