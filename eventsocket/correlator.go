// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"context"
	"sync"
)

// pendingRequest is a single-completion future: exactly one of complete or
// fail is ever called, and wait may be called any number of times (each
// caller blocks until completion; the channel close fans the result out to
// all).
type pendingRequest struct {
	done chan struct{}
	msg  *Message
	err  error
}

func newPendingRequest() *pendingRequest {
	return &pendingRequest{done: make(chan struct{})}
}

func (p *pendingRequest) complete(msg *Message) {
	p.msg = msg
	close(p.done)
}

func (p *pendingRequest) fail(err error) {
	p.err = err
	close(p.done)
}

// wait blocks until the request completes, or ctx is done, whichever comes
// first. A caller that abandons a request by cancelling ctx leaves it to
// complete or fail in the background; nothing reads the result.
func (p *pendingRequest) wait(ctx context.Context) (*Message, error) {
	select {
	case <-p.done:
		return p.msg, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// correlator implements strictly FIFO correlation between outgoing
// requests and the replies FreeSWITCH sends back untagged. There are two
// independent queues because command/reply and api/response are disjoint
// families on the wire; within a family, the contract is simple: the k-th
// reply of a family completes the k-th outstanding request of that family.
type correlator struct {
	mu  sync.Mutex
	cmd []*pendingRequest
	api []*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{}
}

// pushCommand enqueues a pending command-family request. Callers must do
// this before writing the corresponding bytes to the socket, so that a
// fast-arriving reply can never be misrouted to an unrelated request.
func (c *correlator) pushCommand(p *pendingRequest) {
	c.mu.Lock()
	c.cmd = append(c.cmd, p)
	c.mu.Unlock()
}

func (c *correlator) pushAPI(p *pendingRequest) {
	c.mu.Lock()
	c.api = append(c.api, p)
	c.mu.Unlock()
}

// popCommand removes and returns the oldest pending command request, or
// nil if none is outstanding (a stray reply).
func (c *correlator) popCommand() *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cmd) == 0 {
		return nil
	}
	p := c.cmd[0]
	c.cmd = c.cmd[1:]
	return p
}

func (c *correlator) popAPI() *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.api) == 0 {
		return nil
	}
	p := c.api[0]
	c.api = c.api[1:]
	return p
}

// failAll fails every outstanding request in both queues, for use on
// connection loss. It empties both queues.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	cmd, api := c.cmd, c.api
	c.cmd, c.api = nil, nil
	c.mu.Unlock()
	for _, p := range cmd {
		p.fail(err)
	}
	for _, p := range api {
		p.fail(err)
	}
}
