package eventsocket

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestPlayAndGetDigitsResolvesOnMatchingCompletion(t *testing.T) {
	e, fs := newTestEngine(t, stateReadContent)

	go func() {
		buf := make([]byte, 4096)
		n, _ := fs.Read(buf) // play_and_get_digits sendmsg
		if !strings.Contains(string(buf[:n]), "play_and_get_digits") {
			t.Errorf("unexpected command: %q", buf[:n])
		}
		writeFrame(t, fs, "Content-Type: command/reply\nReply-Text: +OK\n\n")

		n, _ = fs.Read(buf) // "event plain CHANNEL_EXECUTE_COMPLETE"
		if !strings.Contains(string(buf[:n]), "CHANNEL_EXECUTE_COMPLETE") {
			t.Errorf("unexpected subscribe line: %q", buf[:n])
		}
		writeFrame(t, fs, "Content-Type: command/reply\nReply-Text: +OK\n\n")
		time.Sleep(20 * time.Millisecond) // let RegisterEvent finish registering before events arrive

		// a completion for an unrelated application must be ignored
		unrelated := "Event-Name: CHANNEL_EXECUTE_COMPLETE\nApplication: playback\n\n"
		writeFrame(t, fs, "Content-Type: text/event-plain\nContent-Length: "+strconv.Itoa(len(unrelated))+"\n\n"+unrelated)

		match := "Event-Name: CHANNEL_EXECUTE_COMPLETE\nApplication: play_and_get_digits\nvariable_my_digits: 1234\n\n"
		writeFrame(t, fs, "Content-Type: text/event-plain\nContent-Length: "+strconv.Itoa(len(match))+"\n\n"+match)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	digits, err := e.PlayAndGetDigits(ctx, 1, 4, 3, 5000, "#", "enter.wav", "invalid.wav", "my_digits", `\d+`, "abc-uuid", false)
	if err != nil {
		t.Fatalf("PlayAndGetDigits: %v", err)
	}
	if digits != "1234" {
		t.Errorf("digits = %q, want %q", digits, "1234")
	}
}

func TestPlaybackSetsTerminatorsThenPlays(t *testing.T) {
	e, fs := newTestEngine(t, stateReadContent)

	go func() {
		buf := make([]byte, 4096)
		n, _ := fs.Read(buf)
		if !strings.Contains(string(buf[:n]), "playback_terminators=#") {
			t.Errorf("expected terminators set first, got %q", buf[:n])
		}
		writeFrame(t, fs, "Content-Type: command/reply\nReply-Text: +OK\n\n")

		n, _ = fs.Read(buf)
		if !strings.Contains(string(buf[:n]), "execute-app-name: playback") {
			t.Errorf("expected playback command, got %q", buf[:n])
		}
		writeFrame(t, fs, "Content-Type: command/reply\nReply-Text: +OK\n\n")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.Playback(ctx, "/tmp/x.wav", "#", "abc-uuid", false); err != nil {
		t.Fatalf("Playback: %v", err)
	}
}

func TestApiGlobalGetVars(t *testing.T) {
	e, fs := newTestEngine(t, stateReadContent)

	go func() {
		buf := make([]byte, 256)
		fs.Read(buf)
		body := "var_one=1\nvar_two=2\n"
		writeFrame(t, fs, "Content-Type: api/response\nContent-Length: "+strconv.Itoa(len(body))+"\n\n"+body)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	vars, err := e.ApiGlobalGetVars(ctx, false)
	if err != nil {
		t.Fatalf("ApiGlobalGetVars: %v", err)
	}
	if vars["var_one"] != "1" || vars["var_two"] != "2" {
		t.Errorf("vars = %v, want var_one=1 var_two=2", vars)
	}
}

func TestApiOriginateFormatsChannelVarsAndApplication(t *testing.T) {
	e, fs := newTestEngine(t, stateReadContent)

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		n, _ := fs.Read(buf)
		done <- string(buf[:n])
		writeFrame(t, fs, "Content-Type: api/response\nContent-Length: 3\n\n+OK")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := e.ApiOriginate(ctx, "sofia/internal/1000", "socket", "localhost:9090 async", "", "", "", "", "", "",
		map[string]string{"origination_caller_id_number": "5551212"}, false)
	if err != nil {
		t.Fatalf("ApiOriginate: %v", err)
	}

	got := <-done
	if !strings.Contains(got, "api originate {origination_caller_id_number=5551212}sofia/internal/1000 &socket(localhost:9090 async)") {
		t.Errorf("originate line = %q", got)
	}
}

func TestApiUUIDDisplacePutsUUIDFirst(t *testing.T) {
	e, fs := newTestEngine(t, stateReadContent)

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := fs.Read(buf)
		done <- string(buf[:n])
		writeFrame(t, fs, "Content-Type: api/response\nContent-Length: 3\n\n+OK")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := e.ApiUUIDDisplace(ctx, "abc-uuid", "start", "/tmp/x.wav", 30, true, false); err != nil {
		t.Fatalf("ApiUUIDDisplace: %v", err)
	}

	got := <-done
	want := "api uuid_displace abc-uuid start /tmp/x.wav 30 mux\n\n"
	if got != want {
		t.Errorf("uuid_displace line = %q, want %q", got, want)
	}
}
