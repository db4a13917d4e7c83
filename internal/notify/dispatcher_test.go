package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherExecutesTasks(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 8}, nil)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		d.Submit(Task{
			Name: "count",
			Run: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		})
	}
	d.Close()

	if got := ran.Load(); got != 5 {
		t.Fatalf("ran = %d, want 5", got)
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped = %d, want 0", d.Dropped())
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 64}, nil)

	var ran atomic.Int64
	for i := 0; i < 50; i++ {
		d.Submit(Task{
			Name: "drain",
			Run: func(context.Context) error {
				ran.Add(1)
				return nil
			},
		})
	}
	d.Close()

	if got := ran.Load(); got != 50 {
		t.Fatalf("ran = %d, want 50", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 1}, nil)

	gate := make(chan struct{})
	started := make(chan struct{})
	var queuedRan atomic.Bool

	// Occupy the worker so the buffer cannot drain.
	d.Submit(Task{
		Name: "blocker",
		Run: func(context.Context) error {
			close(started)
			<-gate
			return nil
		},
	})
	<-started

	// Fills the single buffer slot.
	d.Submit(Task{
		Name: "queued",
		Run: func(context.Context) error {
			queuedRan.Store(true)
			return nil
		},
	})

	// No room left: must drop without blocking.
	done := make(chan struct{})
	go func() {
		d.Submit(Task{Name: "overflow", Run: func(context.Context) error { return nil }})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full buffer")
	}

	close(gate)
	d.Close()

	if !queuedRan.Load() {
		t.Fatal("buffered task was not executed")
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestDispatcherWarnsOnFailure(t *testing.T) {
	var mu sync.Mutex
	var warnings []string
	warn := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	d := NewDispatcher(Config{BufferSize: 4}, warn)
	d.Submit(Task{
		Name: "failing",
		Run: func(context.Context) error {
			return errors.New("smtp down")
		},
	})
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one entry", warnings)
	}
}

func TestDispatcherTaskTimeout(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 1, Timeout: 10 * time.Millisecond}, nil)

	expired := make(chan bool, 1)
	d.Submit(Task{
		Name: "slow",
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				expired <- true
			case <-time.After(time.Second):
				expired <- false
			}
			return nil
		},
	})
	d.Close()

	if !<-expired {
		t.Fatal("task context did not expire at the configured timeout")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	d := NewDispatcher(Config{BufferSize: 1}, nil)
	d.Close()

	var ran atomic.Bool
	d.Submit(Task{
		Name: "late",
		Run: func(context.Context) error {
			ran.Store(true)
			return nil
		},
	})

	if ran.Load() {
		t.Fatal("task submitted after Close must not run")
	}
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	d.Submit(Task{Name: "noop"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count")
	}
}
