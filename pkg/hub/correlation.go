// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hub

import (
	"sync"

	"github.com/Thermoquad/hubctl/pkg/lpf2"
)

// result is what a waiting request receives
type result struct {
	reply lpf2.Upstream
	err   error
}

// pending is an armed synchronous request. done receives exactly one result.
type pending struct {
	req  lpf2.Downstream
	done chan result
}

// resolve delivers the reply, turning a generic error into a CommandError
func (p *pending) resolve(u lpf2.Upstream) {
	if gerr, ok := u.(*lpf2.GenericError); ok {
		p.done <- result{err: &CommandError{Request: p.req.Type(), Reply: gerr}}
		return
	}
	p.done <- result{reply: u}
}

// correlator is the single synchronous request slot.
//
// Idle -> Armed on arm; Armed -> Idle on claim, disarm or close. A claimed
// request is no longer in the slot but its result may still be in flight.
type correlator struct {
	mu     sync.Mutex
	cur    *pending
	closed error
}

// arm installs req in the slot
func (c *correlator) arm(req lpf2.Downstream) (*pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return nil, c.closed
	}
	if c.cur != nil {
		return nil, ErrConcurrentRequest
	}
	c.cur = &pending{req: req, done: make(chan result, 1)}
	return c.cur, nil
}

// claim clears the slot and returns the armed request if u answers it.
// A generic error answers any armed request.
func (c *correlator) claim(u lpf2.Upstream) *pending {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.cur
	if p == nil {
		return nil
	}
	if _, isErr := u.(*lpf2.GenericError); isErr || p.req.IsReply(u) {
		c.cur = nil
		return p
	}
	return nil
}

// disarm clears the slot if p still holds it. It returns false when p was
// already claimed or released, in which case its result is on the way.
func (c *correlator) disarm(p *pending) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur != p {
		return false
	}
	c.cur = nil
	return true
}

// armed reports whether a request is outstanding
func (c *correlator) armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur != nil
}

// close releases the armed request with err and rejects later arms
func (c *correlator) close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed == nil {
		c.closed = err
	}
	if c.cur != nil {
		c.cur.done <- result{err: err}
		c.cur = nil
	}
}
