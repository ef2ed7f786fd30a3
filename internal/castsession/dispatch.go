package castsession

import (
	"fmt"
	"sync"
)

// dispatcher runs posted functions one at a time on a single goroutine.
// The queue is unbounded so posting from inside a job never blocks.
type dispatcher struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	onPanic func(any)
}

func newDispatcher(onPanic func(any)) *dispatcher {
	d := &dispatcher{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		onPanic: onPanic,
	}
	go d.run()
	return d
}

// post queues fn. It reports false once the dispatcher is stopped.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// stop refuses new work. Jobs already queued still run.
func (d *dispatcher) stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.quit)
}

func (d *dispatcher) run() {
	defer close(d.done)

	for {
		d.mu.Lock()
		jobs := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, fn := range jobs {
			d.exec(fn)
		}

		if len(jobs) > 0 {
			continue
		}
		if closed {
			return
		}

		select {
		case <-d.wake:
		case <-d.quit:
		}
	}
}

func (d *dispatcher) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil && d.onPanic != nil {
			d.onPanic(fmt.Sprint(r))
		}
	}()
	fn()
}
