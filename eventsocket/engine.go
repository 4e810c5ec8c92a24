// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// engineState mirrors the data model's state enum. Only readContent and
// readChannelInfo are ever held as the engine's state: readEvent and
// readAPI are never assigned, because Content-Length framing already
// delivers a nested frame's headers and body as one indivisible unit (see
// framer.readFrame), so there is never a partial nested frame straddling
// two socket reads to track state across. They are named here to keep the
// data model's four states traceable in code.
type engineState int

const (
	stateReadContent engineState = iota
	stateReadEvent
	stateReadAPI
	stateReadChannelInfo
)

// Engine is the protocol engine shared by inbound and outbound
// connections: the framer/correlator/dispatcher/router wiring described in
// the component design, plus the background-job table and subscribed-event
// set from the data model. One Engine owns exactly one TCP connection.
type Engine struct {
	conn net.Conn
	fr   *framer
	log  *slog.Logger

	writeMu sync.Mutex

	stateMu sync.Mutex
	state   engineState

	corr       *correlator
	router     *eventRouter
	subscribed *subscribedEvents

	bgMu   sync.Mutex
	bgJobs map[string]*pendingRequest

	onDisconnectNotice func(*Message)
	onChannelInfo      func(*Message)

	closeOnce sync.Once
	closed    chan struct{}

	mu      sync.Mutex
	lastErr error
}

func newEngine(conn net.Conn, log *slog.Logger, initial engineState) *Engine {
	return &Engine{
		conn:       conn,
		fr:         newFramer(conn),
		log:        log,
		state:      initial,
		corr:       newCorrelator(),
		router:     newEventRouter(log),
		subscribed: newSubscribedEvents(),
		bgJobs:     make(map[string]*pendingRequest),
		closed:     make(chan struct{}),
	}
}

func (e *Engine) getState() engineState {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s engineState) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

// Done is closed once the connection is lost and every pending request and
// subscription has been torn down.
func (e *Engine) Done() <-chan struct{} { return e.closed }

// Err returns the error that tore the connection down, if any.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// RemoteAddr returns the remote address of the underlying connection.
func (e *Engine) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

// Close sends "exit" best-effort and tears the connection down.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	_, _ = e.conn.Write([]byte("exit\n\n"))
	e.writeMu.Unlock()
	e.teardown(ErrConnectionLost)
	return nil
}

// run is the dispatcher's read loop: it owns the socket reader goroutine
// for this connection's lifetime.
func (e *Engine) run() {
	for {
		msg, err := e.fr.readFrame()
		if err != nil {
			e.teardown(wrapf(err, "eventsocket: read loop"))
			return
		}
		e.dispatchFrame(msg)
	}
}

// teardown records err as the value of Err, fails every pending request and
// background job with ErrConnectionLost, discards all subscriptions, and
// closes the socket. It runs at most once.
func (e *Engine) teardown(err error) {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()

		e.corr.failAll(ErrConnectionLost)

		e.bgMu.Lock()
		jobs := e.bgJobs
		e.bgJobs = make(map[string]*pendingRequest)
		e.bgMu.Unlock()
		for _, p := range jobs {
			p.fail(ErrConnectionLost)
		}

		e.router.discardAll()
		e.conn.Close()
		close(e.closed)
	})
}

// dispatchFrame routes one parsed Message by engine state, then by
// Content-Type, per the component design's dispatcher table.
func (e *Engine) dispatchFrame(msg *Message) {
	if e.getState() == stateReadChannelInfo {
		msg.decodeURLValues()
		e.setState(stateReadContent)
		if e.onChannelInfo != nil {
			e.onChannelInfo(msg)
		}
		return
	}

	switch ct := msg.Get("Content-Type"); ct {
	case "api/response":
		p := e.corr.popAPI()
		if p == nil {
			e.log.Error("eventsocket: api/response with no pending request")
			return
		}
		p.complete(msg)

	case "command/reply":
		if msg.Has("Job-UUID") {
			// Informational bgapi ack; the authoritative result arrives
			// later as a BACKGROUND_JOB event. Must not pop the FIFO.
			return
		}
		p := e.corr.popCommand()
		if p == nil {
			e.log.Error("eventsocket: command/reply with no pending request")
			return
		}
		reply := msg.Get("Reply-Text")
		if strings.HasPrefix(reply, "+OK") {
			p.complete(msg)
		} else {
			p.fail(&CommandError{ReplyText: reply})
		}

	case "text/event-plain":
		event, err := parseNestedFrame(msg.Body)
		if err != nil {
			e.log.Error("eventsocket: malformed event body", slog.String("err", err.Error()))
			return
		}
		e.handleEvent(event)

	case "text/disconnect-notice":
		if e.onDisconnectNotice != nil {
			e.onDisconnectNotice(msg)
		}

	default:
		e.log.Warn("eventsocket: dropping unsupported content-type", slog.String("content-type", ct))
	}
}

// parseNestedFrame re-parses an event body as a full header
// block plus its own (already fully buffered) body. FreeSWITCH wraps an
// event's real headers inside the outer frame's Content-Length bytes, so
// this never touches the socket again — it parses what's already in hand.
func parseNestedFrame(body []byte) (*Message, error) {
	return newFramer(bytes.NewReader(body)).readFrame()
}

func (e *Engine) handleEvent(msg *Message) {
	if msg.Get("Event-Name") == "BACKGROUND_JOB" {
		e.completeBackgroundJob(msg)
	}
	e.router.dispatch(msg)
}

func (e *Engine) completeBackgroundJob(msg *Message) {
	jobID := msg.Get("Job-UUID")
	e.bgMu.Lock()
	p, ok := e.bgJobs[jobID]
	if ok {
		delete(e.bgJobs, jobID)
	}
	e.bgMu.Unlock()
	if !ok {
		e.log.Warn("eventsocket: BACKGROUND_JOB with unknown Job-UUID", slog.String("job-uuid", jobID))
		return
	}
	p.complete(msg)
}

func (e *Engine) writeLocked(b []byte) error {
	e.writeMu.Lock()
	_, err := e.conn.Write(b)
	e.writeMu.Unlock()
	return err
}

// sendCommandFamily enqueues p on the command FIFO and writes line,
// atomically with respect to other senders, then blocks for the reply.
func (e *Engine) sendCommandFamily(ctx context.Context, line string) (*Message, error) {
	p := newPendingRequest()
	e.writeMu.Lock()
	e.corr.pushCommand(p)
	_, err := e.conn.Write([]byte(line))
	e.writeMu.Unlock()
	if err != nil {
		e.teardown(err)
		return nil, err
	}
	return p.wait(ctx)
}

func (e *Engine) sendAPIFamily(ctx context.Context, line string) (*Message, error) {
	p := newPendingRequest()
	e.writeMu.Lock()
	e.corr.pushAPI(p)
	_, err := e.conn.Write([]byte(line))
	e.writeMu.Unlock()
	if err != nil {
		e.teardown(err)
		return nil, err
	}
	return p.wait(ctx)
}

// SendLine sends a bare command expecting a command/reply, e.g. "filter ...".
func (e *Engine) SendLine(ctx context.Context, cmd string) (*Message, error) {
	return e.sendCommandFamily(ctx, cmd+"\n\n")
}

// SendApi issues a blocking FreeSWITCH API command.
func (e *Engine) SendApi(ctx context.Context, cmd string) (*Message, error) {
	return e.sendAPIFamily(ctx, "api "+cmd+"\n\n")
}

// SendBgApi issues cmd asynchronously: FreeSWITCH acknowledges immediately
// (that ack is discarded, see dispatchFrame) and delivers the real result
// later as a BACKGROUND_JOB event carrying this Job-UUID.
func (e *Engine) SendBgApi(ctx context.Context, cmd string) (*Message, error) {
	id := uuid.NewString()
	p := newPendingRequest()

	e.bgMu.Lock()
	e.bgJobs[id] = p
	e.bgMu.Unlock()

	line := fmt.Sprintf("bgapi %s\nJob-UUID: %s\n\n", cmd, id)
	if err := e.writeLocked([]byte(line)); err != nil {
		e.bgMu.Lock()
		delete(e.bgJobs, id)
		e.bgMu.Unlock()
		e.teardown(err)
		return nil, err
	}
	return p.wait(ctx)
}

// SendCommand executes a dialplan application via a sendmsg frame. uuid is
// optional on outbound sockets (the channel is implicit); inbound sockets
// must supply one.
func (e *Engine) SendCommand(ctx context.Context, app, args, channelUUID string, lock bool) (*Message, error) {
	var b strings.Builder
	b.WriteString("sendmsg")
	if channelUUID != "" {
		b.WriteByte(' ')
		b.WriteString(channelUUID)
	}
	b.WriteByte('\n')
	b.WriteString("call-command: execute\n")
	b.WriteString("execute-app-name: ")
	b.WriteString(app)
	b.WriteByte('\n')
	if args != "" {
		b.WriteString("execute-app-arg: ")
		b.WriteString(args)
		b.WriteByte('\n')
	}
	if lock {
		b.WriteString("event-lock: true\n")
	}
	b.WriteByte('\n')
	return e.sendCommandFamily(ctx, b.String())
}

// SubscribeEvents requests plain-text delivery of the named events. Names
// already covered ("all", "myevents", or an earlier subscription) are left
// out, and the request is suppressed entirely if none remain.
func (e *Engine) SubscribeEvents(ctx context.Context, names ...string) (*Message, error) {
	fresh := make([]string, 0, len(names))
	for _, n := range names {
		if !e.subscribed.covers(n) {
			fresh = append(fresh, n)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	res, err := e.sendCommandFamily(ctx, "event plain "+strings.Join(fresh, " ")+"\n\n")
	if err != nil {
		return nil, err
	}
	for _, n := range fresh {
		if n == "all" {
			e.subscribed.markAll()
		} else {
			e.subscribed.add(n)
		}
	}
	return res, nil
}

// MyEvents ties this socket to the events of a single channel. On outbound
// sockets uuid is usually omitted (the channel is implicit).
func (e *Engine) MyEvents(ctx context.Context, channelUUID string) (*Message, error) {
	line := "myevents"
	if channelUUID != "" {
		line += " " + channelUUID
	}
	res, err := e.sendCommandFamily(ctx, line+"\n\n")
	if err != nil {
		return nil, err
	}
	e.subscribed.markMyEvents()
	return res, nil
}

// RegisterEvent subscribes callback to eventName ("CUSTOM <subclass>" for
// custom events), issuing "event plain ..." first unless subscribe is
// false or the event is already covered.
func (e *Engine) RegisterEvent(ctx context.Context, eventName string, subscribe bool, callback func(*Message)) (*Subscription, error) {
	if subscribe && !e.subscribed.covers(eventName) {
		if _, err := e.sendCommandFamily(ctx, "event plain "+eventName+"\n\n"); err != nil {
			return nil, err
		}
		e.subscribed.add(eventName)
	}
	return e.router.register(eventName, callback), nil
}

// DeregisterEvent removes a previously registered subscription.
func (e *Engine) DeregisterEvent(sub *Subscription) {
	e.router.deregister(sub)
}

// SetDisconnectNoticeHandler sets the callback invoked on
// text/disconnect-notice frames. The transport is expected to close
// shortly after.
func (e *Engine) SetDisconnectNoticeHandler(fn func(*Message)) {
	e.onDisconnectNotice = fn
}
