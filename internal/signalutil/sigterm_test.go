package signalutil

import (
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

func TestWithSIGTERMHandlerInvokesOnTermDuringScope(t *testing.T) {
	var fired int32
	var fnRan int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		WithSIGTERMHandler(func() {
			atomic.StoreInt32(&fired, 1)
		}, func() {
			atomic.StoreInt32(&fnRan, 1)
			time.Sleep(50 * time.Millisecond)
			proc, err := os.FindProcess(os.Getpid())
			if err != nil {
				t.Errorf("FindProcess: %v", err)
				return
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				t.Errorf("Signal: %v", err)
			}
			time.Sleep(50 * time.Millisecond)
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WithSIGTERMHandler did not return in time")
	}

	if atomic.LoadInt32(&fnRan) != 1 {
		t.Fatalf("expected fn to run")
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected onTerm to fire for a SIGTERM delivered mid-scope")
	}
}

func TestWithSIGTERMHandlerDoesNotFireAfterScopeExits(t *testing.T) {
	var firstFired, secondFired int32

	done := make(chan struct{})
	go func() {
		defer close(done)
		WithSIGTERMHandler(func() {
			atomic.StoreInt32(&firstFired, 1)
		}, func() {})

		// First scope has exited and restored the prior disposition. A second,
		// independent scope guard should install and observe its own signal
		// without interference from the first.
		WithSIGTERMHandler(func() {
			atomic.StoreInt32(&secondFired, 1)
		}, func() {
			proc, err := os.FindProcess(os.Getpid())
			if err != nil {
				t.Errorf("FindProcess: %v", err)
				return
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				t.Errorf("Signal: %v", err)
			}
			time.Sleep(50 * time.Millisecond)
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WithSIGTERMHandler did not return in time")
	}

	if atomic.LoadInt32(&firstFired) != 0 {
		t.Fatalf("first scope's onTerm should not have fired; nothing signaled during it")
	}
	if atomic.LoadInt32(&secondFired) != 1 {
		t.Fatalf("expected the second scope's onTerm to fire for its own signal")
	}
}
