package workerruntime

import (
	"context"

	"github.com/fernlabs/reservecore/internal/codec"
	"github.com/google/uuid"
)

// JobContext is the execution contract handed to every Handler.Run, grounded
// on the teacher's runtime.Context but narrowed to this domain: a job body
// only needs its decoded arguments and a cancellable context, because every
// lifecycle transition (running/finished/error/canceled) is centralized in
// Runtime rather than left for handlers to write themselves.
type JobContext struct {
	Ctx        context.Context
	TaskID     uuid.UUID
	JobName    string
	Args       codec.Value
	Kwargs     codec.Value
	WorkingDir string
}

// ArgsNative decodes Args into plain Go values via codec.ToNative.
func (jc *JobContext) ArgsNative() any { return codec.ToNative(jc.Args) }

// KwargsNative decodes Kwargs into plain Go values via codec.ToNative.
func (jc *JobContext) KwargsNative() any { return codec.ToNative(jc.Kwargs) }

// TaskResult lets a handler return a structured outcome (result, spawned child
// task ids) distinct from a plain success value — the unpack target described
// in spec.md §4.4 step 4. Handlers that have nothing to report simply return a
// plain value (or nil) instead of *TaskResult.
type TaskResult struct {
	Result       any
	SpawnedTasks []uuid.UUID
}

// CodedError marks a declared, expected failure (spec.md §4.4 step 5): logged
// at info level without a traceback, as opposed to any other error returned
// from a handler, which always logs its stack trace.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Message }
