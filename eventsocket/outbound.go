// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import "net"

// Outbound is a connection FreeSWITCH opened to us: one per call, carrying
// the channel's metadata (Info) and the operation surface to drive that
// specific call.
type Outbound struct {
	*Engine
	Info *Message // channel info delivered after "connect"
}

// OutboundHandler is invoked once per accepted call, after the connect
// handshake has completed and Info is populated. It runs on its own
// goroutine, separate from the connection's reader goroutine, so it is
// free to make blocking calls (Answer, Playback, ...) for as long as the
// call lasts.
type OutboundHandler func(*Outbound)

// ListenAndServe accepts connections from FreeSWITCH and calls handler for
// each one in its own goroutine. It blocks until the listener fails.
//
// Example:
//
//	eventsocket.ListenAndServe(":8085", func(o *eventsocket.Outbound) {
//		o.Answer(context.Background(), "", true)
//		o.Playback(context.Background(), "/tmp/test.wav", "", "", true)
//	})
func ListenAndServe(addr string, handler OutboundHandler, opts ...Option) error {
	cfg := newConfig(opts...)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveOutbound(conn, cfg, handler)
	}
}

// serveOutbound drives one accepted connection through the
// READ_CHANNELINFO handshake before handing it to handler. The engine's
// tables are always initialized by newEngine before "connect" is written,
// resolving the spec's open question about initialization order the hard
// way: there is no code path where connect can be issued first.
func serveOutbound(conn net.Conn, cfg config, handler OutboundHandler) {
	e := newEngine(conn, cfg.log, stateReadChannelInfo)

	info := make(chan *Message, 1)
	e.onChannelInfo = func(msg *Message) {
		select {
		case info <- msg:
		default:
		}
	}

	go e.run()

	if err := e.writeLocked([]byte("connect\n\n")); err != nil {
		e.teardown(err)
		return
	}

	select {
	case msg := <-info:
		handler(&Outbound{Engine: e, Info: msg})
	case <-e.Done():
		return
	}
}
