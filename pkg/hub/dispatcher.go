// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import "sync"

// dispatcher runs queued callbacks on its own goroutine, so callbacks can
// issue synchronous requests without stalling notification intake.
type dispatcher struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func newDispatcher(depth int) *dispatcher {
	q := &dispatcher{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *dispatcher) run() {
	for {
		select {
		case <-q.done:
			return
		case fn := <-q.queue:
			fn()
		}
	}
}

// post queues fn. It never blocks: false means the queue was full or the
// dispatcher is stopped, and fn was dropped.
func (q *dispatcher) post(fn func()) bool {
	select {
	case <-q.done:
		return false
	default:
	}
	select {
	case q.queue <- fn:
		return true
	default:
		return false
	}
}

// stop ends the goroutine. Queued callbacks that have not started are discarded.
func (q *dispatcher) stop() {
	q.once.Do(func() { close(q.done) })
}
