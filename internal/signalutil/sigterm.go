// Package signalutil provides the SIGTERM handler-registration utility of
// spec.md §6 "Design Notes": install a termination-signal handler for the
// duration of a function call, restoring whatever handler (if any) was
// previously registered on every exit path, including a panic.
package signalutil

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var mu sync.Mutex

// WithSIGTERMHandler installs onTerm as the process's SIGTERM handler for the
// duration of fn, then stops delivery to the channel this call registered, so
// SIGTERM is left to any other os/signal registration, or to the default
// disposition if there is none.
// Serialized by mu: at most one scope guard is active process-wide at a time,
// since os/signal's registration is itself global state — grounded on
// original_source's register_sigterm_handler, which guards the same global
// resource with a lock.
func WithSIGTERMHandler(onTerm func(), fn func()) {
	mu.Lock()
	defer mu.Unlock()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			onTerm()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		signal.Stop(ch)
	}()

	fn()
}
