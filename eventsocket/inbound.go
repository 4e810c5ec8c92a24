// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"context"
	"net"
)

// Inbound is a client connection to FreeSWITCH: it dials in, authenticates
// with a password, then drives API commands, dialplan execution, and event
// subscriptions from the caller's side. Embedding Engine gives it the full
// operation surface from the component design (§4.6/§4.7).
type Inbound struct {
	*Engine
}

// Dial connects to a FreeSWITCH EventSocket listener (127.0.0.1:8021 by
// convention) and authenticates. The handshake is synchronous: Dial does
// not return until either "+OK accepted" or an error is observed, before
// the dispatcher's read loop starts.
//
// Example:
//
//	c, err := eventsocket.Dial("127.0.0.1:8021", "ClueCon")
//	res, err := c.SendApi(context.Background(), "status")
func Dial(addr, password string, opts ...Option) (*Inbound, error) {
	cfg := newConfig(opts...)

	conn, err := net.DialTimeout("tcp", addr, cfg.dialTimeout)
	if err != nil {
		return nil, err
	}

	in, err := newInbound(conn, password, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return in, nil
}

// newInbound performs the auth/request -> auth <password> -> +OK handshake
// over an already-open connection, then starts the dispatcher loop.
func newInbound(conn net.Conn, password string, cfg config) (*Inbound, error) {
	e := newEngine(conn, cfg.log, stateReadContent)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.authTimeout)
	defer cancel()

	type authResult struct {
		reply *Message
		err   error
	}
	done := make(chan authResult, 1)
	go func() {
		first, err := e.fr.readFrame()
		if err != nil {
			done <- authResult{err: err}
			return
		}
		if first.Get("Content-Type") != "auth/request" {
			done <- authResult{err: ErrMissingAuthRequest}
			return
		}
		if err := e.writeLocked([]byte("auth " + password + "\n\n")); err != nil {
			done <- authResult{err: err}
			return
		}
		// The dispatcher loop isn't running yet, so read and route this
		// one reply by hand before handing off to run().
		reply, err := e.fr.readFrame()
		done <- authResult{reply: reply, err: err}
	}()

	var res authResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}
	if res.reply.Get("Reply-Text") != "+OK accepted" {
		return nil, &AuthFailedError{Reason: res.reply.Get("Reply-Text")}
	}

	go e.run()
	return &Inbound{Engine: e}, nil
}
