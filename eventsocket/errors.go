// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"errors"
	"fmt"
)

// CommandError means FreeSWITCH refused a command with a "-ERR" reply. It
// surfaces only on the failing request's own result, never elsewhere.
type CommandError struct {
	ReplyText string
}

func (e *CommandError) Error() string { return e.ReplyText }

// ProtocolError means the framer found a malformed header line or
// Content-Length value. In a frame read from the socket it ends the read
// loop and tears the connection down; in the nested body of an event it is
// logged and that event is dropped. Frames with a missing Content-Type and
// replies with no pending request are logged and dropped without one.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "eventsocket: protocol error: " + e.Reason }

// AuthFailedError means the inbound "auth" request did not return "+OK".
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string { return "eventsocket: auth failed: " + e.Reason }

// ErrConnectionLost is terminal: every pending request and every implicit
// composite-operation subscription fails with this once the transport
// closes or a fatal read error occurs.
var ErrConnectionLost = errors.New("eventsocket: connection lost")

// ErrMissingAuthRequest means the server's first frame was not
// "Content-Type: auth/request" as the inbound handshake requires.
var ErrMissingAuthRequest = errors.New("eventsocket: missing auth request")

// ErrInvalidCommand means a command argument contains a bare \r or \n,
// which would let a caller break the line-oriented command framing.
var ErrInvalidCommand = errors.New("eventsocket: command contains \\r or \\n")

func wrapf(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, err)...)
}
