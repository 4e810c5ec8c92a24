// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Message is a single parsed EventSocket frame: an ordered, case-insensitive
// header block plus an opaque body. It backs command replies, API
// responses, events, and background-job completions alike — the wire
// format is identical for all four, only the Content-Type header and the
// engine state at arrival time decide how a Message is routed.
type Message struct {
	names  []string // canonical-cased header names, in arrival order
	values map[string]string
	index  map[string]string // lowercase -> canonical case, for Get/Set
	Body   []byte
}

// NewMessage returns an empty Message ready for Set/WriteTo.
func NewMessage() *Message {
	return &Message{
		values: make(map[string]string),
		index:  make(map[string]string),
	}
}

// Get returns the header value, or "" if absent. Lookup is case-insensitive.
func (m *Message) Get(name string) string {
	key := strings.ToLower(name)
	if canon, ok := m.index[key]; ok {
		return m.values[canon]
	}
	return ""
}

// GetInt returns the header value parsed as an int.
func (m *Message) GetInt(name string) (int, error) {
	v := m.Get(name)
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("eventsocket: header %q is not an int: %q", name, v)
	}
	return n, nil
}

// Has reports whether the header is present.
func (m *Message) Has(name string) bool {
	_, ok := m.index[strings.ToLower(name)]
	return ok
}

// Set assigns a header value. Duplicates are not expected on the wire, but
// per the invariant in the data model, the last write wins; the original
// case of the header name (from its first appearance) is preserved for
// serialization.
func (m *Message) Set(name, value string) {
	key := strings.ToLower(name)
	if canon, ok := m.index[key]; ok {
		m.values[canon] = value
		return
	}
	m.index[key] = name
	m.names = append(m.names, name)
	m.values[name] = value
}

// Names returns header names in the order they were first set.
func (m *Message) Names() []string {
	out := make([]string, len(m.names))
	copy(out, m.names)
	return out
}

// decodeURLValues replaces every header value with its URL-percent-decoded
// form. FreeSWITCH URL-encodes header values on CUSTOM events and on the
// outbound channel-info frame.
func (m *Message) decodeURLValues() {
	for _, name := range m.names {
		if decoded, err := url.QueryUnescape(m.values[name]); err == nil {
			m.values[name] = decoded
		}
	}
}

// WriteTo serializes the message as `Name: Value\n` lines terminated by one
// blank line, followed by the body if any. Headers are never folded: some
// values (a UUID plus application args) exceed 78 columns and FreeSWITCH
// rejects folded continuation lines.
func (m *Message) WriteTo(buf *strings.Builder) {
	for _, name := range m.names {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(m.values[name])
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	if len(m.Body) > 0 {
		buf.Write(m.Body)
	}
}

// Bytes renders the full serialized frame, headers plus body.
func (m *Message) Bytes() []byte {
	var b strings.Builder
	m.WriteTo(&b)
	return []byte(b.String())
}

func (m *Message) String() string {
	if len(m.Body) == 0 {
		return fmt.Sprintf("%v", m.values)
	}
	return fmt.Sprintf("%v body=%s", m.values, m.Body)
}
