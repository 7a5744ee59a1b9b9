package authcore

import (
	"log"
	"sync"
)

// auditDispatcher decouples event emission from sink delivery. Engine
// operations enqueue onto a buffered channel; a single goroutine drains it
// into the sink. Close stops intake and drains what was already queued.
type auditDispatcher struct {
	events     chan AuditEvent
	sink       AuditSink
	dropIfFull bool

	closeOnce sync.Once
	done      chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newAuditDispatcher(sink AuditSink, bufferSize int, dropIfFull bool) *auditDispatcher {
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &auditDispatcher{
		events:     make(chan AuditEvent, bufferSize),
		sink:       sink,
		dropIfFull: dropIfFull,
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.done)
	for event := range d.events {
		d.sink.Write(event)
	}
}

// emit queues an event. With dropIfFull the call never blocks; otherwise it
// waits for buffer space, applying backpressure to the auth path.
func (d *auditDispatcher) emit(event AuditEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	if d.dropIfFull {
		select {
		case d.events <- event:
		default:
			log.Printf("authcore: audit buffer full, dropping %s event", event.EventType)
		}
		return
	}
	d.events <- event
}

// close stops intake, waits for queued events to reach the sink, and
// returns. Safe to call more than once.
func (d *auditDispatcher) close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.events)
	})
	<-d.done
}
