// Package notify runs fire-and-forget work off the request path. Tasks
// are submitted to a buffered channel and executed by a single worker;
// failures are logged through the warn hook and never reach the caller.
package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a named background unit of work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config controls dispatcher buffering and per-task deadlines.
type Config struct {
	BufferSize int
	Timeout    time.Duration
}

// Dispatcher executes tasks asynchronously. Submit never blocks the
// caller: when the buffer is full the task is dropped and counted.
type Dispatcher struct {
	cfg       Config
	warn      func(format string, args ...any)
	ch        chan Task
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher creates and starts a Dispatcher. warn may be nil.
func NewDispatcher(cfg Config, warn func(format string, args ...any)) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if warn == nil {
		warn = func(string, ...any) {}
	}

	d := &Dispatcher{
		cfg:  cfg,
		warn: warn,
		ch:   make(chan Task, cfg.BufferSize),
		done: make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case task := <-d.ch:
			d.execute(task)
		case <-d.done:
			for {
				select {
				case task := <-d.ch:
					d.execute(task)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) execute(task Task) {
	if task.Run == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	if err := task.Run(ctx); err != nil {
		d.warn("idcore: background task %s failed: %v", task.Name, err)
	}
}

// Submit queues a task for execution. Never blocks; drops when full.
func (d *Dispatcher) Submit(task Task) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- task:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.warn("idcore: background task %s dropped: dispatcher buffer full", task.Name)
	}
}

// Dropped returns the number of tasks dropped due to backpressure.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops accepting tasks, drains the buffer, and waits for the
// worker to finish.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}
