package queue

import (
	"context"
	"sync"
)

// Dispatcher decouples event producers from a callback. Producers Post events without blocking and
// without holding any of their own locks while the callback runs; Run delivers the events in FIFO order
// on the goroutine that calls it.
type Dispatcher[T any] struct {
	q       *LockFreeQueue[T]
	signal  chan struct{}
	mu      sync.RWMutex
	handler func(T)
}

// NewDispatcher creates a dispatcher delivering to handler. handler may be nil and set later.
func NewDispatcher[T any](handler func(T)) *Dispatcher[T] {
	return &Dispatcher[T]{
		q:       NewLockFreeQueue[T](),
		signal:  make(chan struct{}, 1),
		handler: handler,
	}
}

// SetHandler replaces the callback. Events posted while no handler is set are dropped on delivery.
func (d *Dispatcher[T]) SetHandler(handler func(T)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handler = handler
}

// Post enqueues ev for delivery. It never blocks.
func (d *Dispatcher[T]) Post(ev T) {
	d.q.Enqueue(ev)
	select {
	case d.signal <- struct{}{}:
	default:
	}
}

// Pending returns the number of events not yet delivered.
func (d *Dispatcher[T]) Pending() int {
	return d.q.Length()
}

// Run delivers events until ctx is done. Events already posted when ctx is cancelled are delivered
// before Run returns, so once Run has returned no further callback is made.
func (d *Dispatcher[T]) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.signal:
			d.drain()
		}
	}
}

func (d *Dispatcher[T]) drain() {
	for {
		ev, ok := d.q.Dequeue()
		if !ok {
			return
		}

		d.mu.RLock()
		h := d.handler
		d.mu.RUnlock()

		if h != nil {
			h(ev)
		}
	}
}

// Discard drops every queued event without delivering it and returns how many were dropped.
func (d *Dispatcher[T]) Discard() int {
	n := 0
	for {
		if _, ok := d.q.Dequeue(); !ok {
			return n
		}
		n++
	}
}
