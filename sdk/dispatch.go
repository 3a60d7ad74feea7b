package sdk

import (
	"errors"
	"sync"
)

var (
	errDispatcherNil    = errors.New("dispatcher not initialized")
	errDispatcherClosed = errors.New("dispatcher closed")
)

type dispatchResult struct {
	value any
	err   error
}

// dispatcher serializes work onto a single goroutine.
//
// Hosts call exported methods from arbitrary goroutines and socket, bridge
// and timer callbacks arrive on their own goroutines. Funnelling every
// controller state change through one queue keeps the flow single-writer.
type dispatcher struct {
	mu     sync.RWMutex
	closed bool
	q      chan func()
	done   chan struct{}
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q:    make(chan func(), queueSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for fn := range d.q {
			if fn != nil {
				fn()
			}
		}
	}()
	return d
}

// do enqueues fn without waiting for it. It must be safe to call from the
// dispatcher goroutine itself.
func (d *dispatcher) do(fn func()) error {
	if d == nil {
		return errDispatcherNil
	}
	if fn == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errDispatcherClosed
	}
	d.q <- fn
	return nil
}

// call runs fn on the dispatcher goroutine and waits for its result. It
// must never be called from the dispatcher goroutine.
func (d *dispatcher) call(fn func() (any, error)) (any, error) {
	if d == nil {
		return nil, errDispatcherNil
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	err := d.do(func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	})
	if err != nil {
		return nil, err
	}
	res := <-done
	return res.value, res.err
}

// stop drains queued work and ends the goroutine.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.q)
	d.mu.Unlock()
	<-d.done
}
