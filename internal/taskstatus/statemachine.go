package taskstatus

import "github.com/fernlabs/reservecore/internal/domain"

// Outcome is the result a worker's job body produced, unpacked into the
// finishing transition Finish applies on success (spec.md §4.4 step 4). The
// failure path (workerruntime.CodedError via errors.As, spec.md §4.4 step 5)
// passes its error message and traceback to Fail directly rather than through
// Outcome.
type Outcome struct {
	Result       []byte
	SpawnedTasks []byte
}

// nextOnSuccess and nextOnFailure exist only to document that both finishing
// transitions target a single terminal value each — unlike cancel, which can
// land from any non-terminal state. Kept as named constants rather than
// inlined so the state diagram in spec.md §3 has one obvious place to verify
// against.
const (
	nextOnSuccess = domain.StateFinished
	nextOnFailure = domain.StateError
	nextOnCancel  = domain.StateCanceled
)
