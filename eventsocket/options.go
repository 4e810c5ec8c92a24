// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"io"
	"log/slog"
	"time"
)

const bufferSize = 1024 << 6 // initial bufio.Reader size for the socket

// Default timeouts, overridable per connection via WithDialTimeout /
// WithAuthTimeout.
const (
	defaultDialTimeout = 5 * time.Second
	defaultAuthTimeout = 2 * time.Second
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// config holds the tunables threaded through Dial / ListenAndServe via
// functional options. There is no intrinsic configuration source for this
// library (spec Non-goals exclude one); callers wire it from whatever
// config layer their own program uses.
type config struct {
	log         *slog.Logger
	dialTimeout time.Duration
	authTimeout time.Duration
}

func defaultConfig() config {
	return config{
		log:         discardLogger,
		dialTimeout: defaultDialTimeout,
		authTimeout: defaultAuthTimeout,
	}
}

// Option customizes a Dial or ListenAndServe call.
type Option func(*config)

// WithLogger sets the structured logger used for protocol-level
// diagnostics (dropped frames, stray replies, recovered callback panics).
// Nil is treated as "no logging".
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log == nil {
			log = discardLogger
		}
		c.log = log
	}
}

// WithDialTimeout bounds the initial TCP dial for inbound connections.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithAuthTimeout bounds the inbound auth/request -> auth -> +OK handshake.
func WithAuthTimeout(d time.Duration) Option {
	return func(c *config) { c.authTimeout = d }
}

func newConfig(opts ...Option) config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
