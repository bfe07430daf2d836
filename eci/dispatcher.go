package eci

import (
	"context"
	"sync"

	"nvec-go/internal/eventpool"
)

// dispatcher is the EventDispatcher: a single deferred worker that drains
// events the state machine allocated and fans them out to registered
// listeners. Feeding the worker (enqueue) must never block the bus
// callback; running listeners (dispatch) happens on the worker goroutine,
// which is free to sleep.
type dispatcher struct {
	pool  *eventpool.Pool
	queue chan *eventpool.Event

	mu        sync.Mutex
	listeners []listenerEntry
	nextID    int

	done chan struct{}
}

type listenerEntry struct {
	id     int
	evType int // < 0 matches every type
	fn     Listener
}

func newDispatcher(pool *eventpool.Pool) *dispatcher {
	return &dispatcher{
		pool:  pool,
		queue: make(chan *eventpool.Event, eventpool.Slots),
	}
}

// enqueue hands ev off to the worker. Called from the bus callback; must
// not block. The queue is sized to the event pool, so under normal
// operation this never hits its default branch — the branch exists as a
// defensive backstop, not a sizing assumption.
func (disp *dispatcher) enqueue(ev *eventpool.Event) {
	select {
	case disp.queue <- ev:
	default:
		logln("eci: dispatcher queue full, dropping event")
		disp.pool.Free(ev)
	}
}

// register adds l and returns a function that removes it.
func (disp *dispatcher) register(evType int, l Listener) func() {
	disp.mu.Lock()
	id := disp.nextID
	disp.nextID++
	disp.listeners = append(disp.listeners, listenerEntry{id: id, evType: evType, fn: l})
	disp.mu.Unlock()

	return func() {
		disp.mu.Lock()
		for i, e := range disp.listeners {
			if e.id == id {
				disp.listeners = append(disp.listeners[:i], disp.listeners[i+1:]...)
				break
			}
		}
		disp.mu.Unlock()
	}
}

// start launches the worker goroutine; it runs until ctx is cancelled.
func (disp *dispatcher) start(ctx context.Context) {
	disp.done = make(chan struct{})
	go func() {
		defer close(disp.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-disp.queue:
				disp.dispatchOne(ev)
			}
		}
	}()
}

func (disp *dispatcher) dispatchOne(ev *eventpool.Event) {
	out := Event{
		Type:    ev.Type,
		Status:  ev.Status,
		Payload: append([]byte(nil), ev.Payload[:ev.PayloadLen]...),
	}

	disp.mu.Lock()
	targets := make([]Listener, 0, len(disp.listeners))
	for _, e := range disp.listeners {
		if e.evType < 0 || byte(e.evType) == out.Type {
			targets = append(targets, e.fn)
		}
	}
	disp.mu.Unlock()

	for _, fn := range targets {
		fn(out)
	}

	disp.pool.Free(ev)
}
