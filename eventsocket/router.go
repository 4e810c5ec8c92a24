// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"log/slog"
	"strings"
	"sync"
)

// Subscription is the handle returned by registering an event callback.
// Callers hold it only to later deregister; its fields are private, it is
// identified by pointer.
type Subscription struct {
	eventName string // full name passed to Register, e.g. "CUSTOM conference::maintenance"
	subclass  string // non-empty only for CUSTOM subscriptions
	callback  func(*Message)
}

// subscribedEvents tracks which events the engine has already asked
// FreeSWITCH to deliver, so repeated registerEvent(subscribe=true) calls
// don't re-send "event plain ...". "all" and "myevents" are sentinel
// booleans rather than set members so coverage checks stay O(1).
type subscribedEvents struct {
	mu       sync.Mutex
	all      bool
	myevents bool
	names    map[string]bool
}

func newSubscribedEvents() *subscribedEvents {
	return &subscribedEvents{names: make(map[string]bool)}
}

func (s *subscribedEvents) covers(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all || s.myevents || s.names[name]
}

func (s *subscribedEvents) markAll() {
	s.mu.Lock()
	s.all = true
	s.mu.Unlock()
}

func (s *subscribedEvents) markMyEvents() {
	s.mu.Lock()
	s.myevents = true
	s.mu.Unlock()
}

func (s *subscribedEvents) add(name string) {
	s.mu.Lock()
	s.names[name] = true
	s.mu.Unlock()
}

// eventRouter holds the subscription table and fans incoming events out to
// registered callbacks, demultiplexing CUSTOM events by Event-Subclass.
type eventRouter struct {
	mu         sync.Mutex
	byName     map[string][]*Subscription
	bySubclass map[string][]*Subscription
	log        *slog.Logger
}

func newEventRouter(log *slog.Logger) *eventRouter {
	return &eventRouter{
		byName:     make(map[string][]*Subscription),
		bySubclass: make(map[string][]*Subscription),
		log:        log,
	}
}

// splitCustom splits "CUSTOM <subclass>" into its subclass, or returns ""
// if eventName isn't a CUSTOM registration.
func splitCustom(eventName string) (subclass string, isCustom bool) {
	name, rest, found := strings.Cut(eventName, " ")
	if name != "CUSTOM" {
		return "", false
	}
	if !found || strings.TrimSpace(rest) == "" {
		return "", true
	}
	return strings.TrimSpace(rest), true
}

// register records a subscription in the name or CUSTOM-subclass table. It
// writes nothing to the wire; Engine.RegisterEvent issues "event plain ..."
// first when the event is not yet covered.
func (r *eventRouter) register(eventName string, callback func(*Message)) *Subscription {
	sub := &Subscription{eventName: eventName, callback: callback}
	if subclass, isCustom := splitCustom(eventName); isCustom {
		sub.subclass = subclass
		r.mu.Lock()
		r.bySubclass[subclass] = append(r.bySubclass[subclass], sub)
		r.mu.Unlock()
		return sub
	}
	r.mu.Lock()
	r.byName[eventName] = append(r.byName[eventName], sub)
	r.mu.Unlock()
	return sub
}

// deregister removes a subscription. Removing an already-removed (or
// foreign) subscription is tolerated and logged, not panicked on.
func (r *eventRouter) deregister(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var table map[string][]*Subscription
	var key string
	if sub.subclass != "" {
		table, key = r.bySubclass, sub.subclass
	} else {
		table, key = r.byName, sub.eventName
	}
	list := table[key]
	for i, s := range list {
		if s == sub {
			table[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
	r.log.Warn("eventsocket: deregister of unknown or already-removed subscription",
		slog.String("event", sub.eventName))
}

// dispatch fans msg out to every matching subscriber. A panicking callback
// is recovered and logged; it never reaches the reader goroutine, and
// sibling callbacks still run.
func (r *eventRouter) dispatch(msg *Message) {
	eventName := msg.Get("Event-Name")

	var subs []*Subscription
	if eventName == "CUSTOM" {
		msg.decodeURLValues()
		subclass := msg.Get("Event-Subclass")
		r.mu.Lock()
		subs = append(subs, r.bySubclass[subclass]...)
		r.mu.Unlock()
	} else {
		r.mu.Lock()
		subs = append(subs, r.byName[eventName]...)
		r.mu.Unlock()
	}

	for _, sub := range subs {
		r.invoke(sub, msg)
	}
}

func (r *eventRouter) invoke(sub *Subscription, msg *Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("eventsocket: recovered panic in event callback",
				slog.String("event", sub.eventName),
				slog.Any("panic", rec))
		}
	}()
	sub.callback(msg)
}

// discardAll drops every subscription, used on connection loss.
func (r *eventRouter) discardAll() {
	r.mu.Lock()
	r.byName = make(map[string][]*Subscription)
	r.bySubclass = make(map[string][]*Subscription)
	r.mu.Unlock()
}
