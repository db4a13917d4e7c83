package idcore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAuditDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelAuditSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)

	ctx := context.Background()
	for _, name := range []string{"first", "second", "third"} {
		d.Emit(ctx, AuditEvent{EventType: name, Timestamp: time.Now()})
	}
	d.Close()

	for _, want := range []string{"first", "second", "third"} {
		select {
		case e := <-sink.Events():
			if e.EventType != want {
				t.Fatalf("event = %q, want %q", e.EventType, want)
			}
		default:
			t.Fatalf("event %q missing after Close", want)
		}
	}
	if d.Dropped() != 0 {
		t.Fatalf("dropped = %d", d.Dropped())
	}
}

func TestAuditDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NewChannelAuditSink(1))
	if d != nil {
		t.Fatal("disabled config must yield a nil dispatcher")
	}

	// All operations on the nil dispatcher are safe no-ops.
	d.Emit(context.Background(), AuditEvent{EventType: "ignored"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher dropped count")
	}
}

type gatedAuditSink struct {
	started chan struct{}
	gate    chan struct{}
	seen    atomic.Int64
	once    sync.Once
}

func (s *gatedAuditSink) Emit(context.Context, AuditEvent) {
	s.once.Do(func() { close(s.started) })
	<-s.gate
	s.seen.Add(1)
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &gatedAuditSink{
		started: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	ctx := context.Background()

	// Occupy the worker, then fill the single buffer slot.
	d.Emit(ctx, AuditEvent{EventType: "blocking"})
	<-sink.started
	d.Emit(ctx, AuditEvent{EventType: "buffered"})

	// No room left: must drop without blocking the caller.
	done := make(chan struct{})
	go func() {
		d.Emit(ctx, AuditEvent{EventType: "overflow"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer with DropIfFull set")
	}

	close(sink.gate)
	d.Close()

	if got := sink.seen.Load(); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	if d.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", d.Dropped())
	}
}

func TestAuditDispatcherEmitAfterClose(t *testing.T) {
	sink := NewChannelAuditSink(8)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 8}, sink)
	d.Close()

	d.Emit(context.Background(), AuditEvent{EventType: "late"})

	select {
	case e := <-sink.Events():
		t.Fatalf("event delivered after Close: %+v", e)
	default:
	}
}
