package eventsocket

import (
	"strconv"
	"strings"
	"testing"
)

func TestFramerReadFrameHeadersOnly(t *testing.T) {
	raw := "Content-Type: command/reply\nReply-Text: +OK accepted\n\n"
	fr := newFramer(strings.NewReader(raw))

	msg, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if got := msg.Get("Content-Type"); got != "command/reply" {
		t.Errorf("Content-Type = %q, want %q", got, "command/reply")
	}
	if got := msg.Get("Reply-Text"); got != "+OK accepted" {
		t.Errorf("Reply-Text = %q, want %q", got, "+OK accepted")
	}
	if len(msg.Body) != 0 {
		t.Errorf("Body = %q, want empty", msg.Body)
	}
}

func TestFramerReadFrameWithContentLengthBody(t *testing.T) {
	body := "Event-Name: CUSTOM\nEvent-Subclass: conference::maintenance\n\n"
	raw := "Content-Type: text/event-plain\nContent-Length: " +
		strconv.Itoa(len(body)) + "\n\n" + body
	fr := newFramer(strings.NewReader(raw))

	msg, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if string(msg.Body) != body {
		t.Errorf("Body = %q, want %q", msg.Body, body)
	}
}

func TestFramerReadFrameExactBodyLeavesNextFrameIntact(t *testing.T) {
	first := "Content-Type: api/response\nContent-Length: 2\n\nok"
	second := "Content-Type: command/reply\nReply-Text: +OK\n\n"
	fr := newFramer(strings.NewReader(first + second))

	msg1, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame #1: %v", err)
	}
	if string(msg1.Body) != "ok" {
		t.Errorf("first body = %q, want %q", msg1.Body, "ok")
	}

	msg2, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame #2: %v", err)
	}
	if msg2.Get("Reply-Text") != "+OK" {
		t.Errorf("second Reply-Text = %q, want %q", msg2.Get("Reply-Text"), "+OK")
	}
}

func TestFramerMalformedHeaderLine(t *testing.T) {
	fr := newFramer(strings.NewReader("not-a-header-line\n\n"))
	if _, err := fr.readFrame(); err == nil {
		t.Error("readFrame on malformed header: want error, got nil")
	}
}

func TestFramerFoldedHeaderLine(t *testing.T) {
	raw := "Reply-Text: +OK\n accepted\n\n"
	fr := newFramer(strings.NewReader(raw))
	msg, err := fr.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if got := msg.Get("Reply-Text"); got != "+OK accepted" {
		t.Errorf("Reply-Text = %q, want folded value %q", got, "+OK accepted")
	}
}

