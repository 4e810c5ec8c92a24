// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
)

// framer turns a byte stream into Message values. It owns the single
// bufio.Reader for a connection and knows two things about FreeSWITCH
// framing that a generic line reader does not: header blocks are
// RFC-5322-folded and terminated by a blank line, and some of them are
// followed by exactly Content-Length raw bytes with no trailing delimiter.
//
// It never re-enters header parsing on body bytes: readFrame reads the
// header block to completion, then — if Content-Length is present — reads
// exactly that many bytes as an indivisible second step before returning.
type framer struct {
	tr *textproto.Reader
	br *bufio.Reader
}

func newFramer(r io.Reader) *framer {
	br := bufio.NewReaderSize(r, bufferSize)
	return &framer{tr: textproto.NewReader(br), br: br}
}

// readFrame reads one header block and its body, if any. It preserves
// header order (textproto.Reader.ReadMIMEHeader returns an unordered map,
// so headers are read line by line instead, via ReadContinuedLineBytes,
// which still unfolds RFC-5322 continuation lines for us).
func (f *framer) readFrame() (*Message, error) {
	m := NewMessage()
	for {
		line, err := f.tr.ReadContinuedLineBytes()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			break
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed header line: %q", line)}
		}
		m.Set(name, value)
	}

	if v := m.Get("Content-Length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, &ProtocolError{Reason: fmt.Sprintf("malformed Content-Length: %q", v)}
		}
		if n > 0 {
			body, err := f.readExactly(n)
			if err != nil {
				return nil, err
			}
			m.Body = body
		}
	}
	return m, nil
}

// readExactly reads exactly n bytes. bufio.Reader buffers ahead of the
// logical frame boundary routinely (a second pipelined reply can already
// be sitting in the buffer when this is called); io.ReadFull against the
// same reader used for header parsing guarantees we consume precisely n
// bytes and leave any surplus for the next readFrame call, regardless of
// how much was already buffered.
func (f *framer) readExactly(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.br, buf); err != nil {
		return nil, wrapf(err, "eventsocket: reading %d-byte frame body", n)
	}
	return buf, nil
}

// splitHeaderLine splits a header line on its first colon, trimming the
// leading space conventionally following it.
func splitHeaderLine(line []byte) (name, value string, ok bool) {
	idx := -1
	for i, b := range line {
		if b == ':' {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return "", "", false
	}
	name = string(line[:idx])
	value = strings.TrimLeft(string(line[idx+1:]), " \t")
	return name, value, true
}
