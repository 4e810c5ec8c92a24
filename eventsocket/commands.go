// Copyright 2013 Alexandre Fiori
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package eventsocket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// This file is the representative-and-then-some wrapper catalog: thin
// string formatting over SendCommand/SendApi/SendBgApi, plus the two
// composite operations (PlayAndGetDigits, PlaybackSync) that stitch a
// command reply together with a later completion event into one result.
// Every wrapper here is grounded in original_source/fsprotocol.py's
// matching api*/dptool method.

func apiCommand(e *Engine, ctx context.Context, cmd string, background bool) (*Message, error) {
	if background {
		return e.SendBgApi(ctx, cmd)
	}
	return e.SendApi(ctx, cmd)
}

// --- dialplan applications (sendmsg call-command: execute) ---

// Answer answers the channel.
func (e *Engine) Answer(ctx context.Context, channelUUID string, lock bool) (*Message, error) {
	return e.SendCommand(ctx, "answer", "", channelUUID, lock)
}

// Hangup hangs up the current channel.
func (e *Engine) Hangup(ctx context.Context, channelUUID string, lock bool) (*Message, error) {
	return e.SendCommand(ctx, "hangup", "", channelUUID, lock)
}

// Bridge bridges the channel to the given endpoints.
func (e *Engine) Bridge(ctx context.Context, endpoints []string, channelUUID string, lock bool) (*Message, error) {
	return e.SendCommand(ctx, "bridge", strings.Join(endpoints, ","), channelUUID, lock)
}

// Set sets a channel variable.
func (e *Engine) Set(ctx context.Context, variable, value, channelUUID string, lock bool) (*Message, error) {
	return e.SendCommand(ctx, "set", variable+"="+value, channelUUID, lock)
}

// Say plays a say-phrase on the channel.
func (e *Engine) Say(ctx context.Context, module, sayType, sayMethod, text, channelUUID string, lock bool) (*Message, error) {
	args := strings.Join([]string{module, sayType, sayMethod, text}, " ")
	return e.SendCommand(ctx, "say", args, channelUUID, lock)
}

// SchedHangup schedules a hangup seconds from now.
func (e *Engine) SchedHangup(ctx context.Context, seconds int, channelUUID string, lock bool) (*Message, error) {
	return e.SendCommand(ctx, "sched_hangup", "+"+strconv.Itoa(seconds), channelUUID, lock)
}

// Playback plays a sound file. terminators defaults to "none" when empty,
// matching the original's treatment of a missing terminator set.
func (e *Engine) Playback(ctx context.Context, path, terminators, channelUUID string, lock bool) (*Message, error) {
	if terminators == "" {
		terminators = "none"
	}
	if _, err := e.Set(ctx, "playback_terminators", terminators, channelUUID, lock); err != nil {
		return nil, err
	}
	return e.SendCommand(ctx, "playback", path, channelUUID, lock)
}

// --- composite operations: command + completion event stitched into one result ---

// subscriptionCell lets a callback deregister its own subscription once it
// has fired, without racing the RegisterEvent call that produced it.
type subscriptionCell struct {
	mu  sync.Mutex
	sub *Subscription
}

func (c *subscriptionCell) set(sub *Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

func (c *subscriptionCell) get() *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sub
}

// PlayAndGetDigits plays filename and collects DTMF into varname, matching
// the result against regexp on the FreeSWITCH side. It sends
// play_and_get_digits and, only once that command is acknowledged,
// registers a CHANNEL_EXECUTE_COMPLETE subscription to catch the result;
// if the command itself fails, no subscription is registered at all. An
// absent result variable resolves to "".
func (e *Engine) PlayAndGetDigits(ctx context.Context, min, max, tries, timeoutMS int, terminators, filename, invalidFile, varname, regexp, channelUUID string, lock bool) (string, error) {
	args := fmt.Sprintf("%d %d %d %d %s %s %s %s %s",
		min, max, tries, timeoutMS, terminators, filename, invalidFile, varname, regexp)
	if _, err := e.SendCommand(ctx, "play_and_get_digits", args, channelUUID, lock); err != nil {
		return "", err
	}

	result := make(chan string, 1)
	cell := &subscriptionCell{}
	sub, err := e.RegisterEvent(ctx, "CHANNEL_EXECUTE_COMPLETE", true, func(msg *Message) {
		if msg.Get("Application") != "play_and_get_digits" {
			return
		}
		if s := cell.get(); s != nil {
			e.DeregisterEvent(s)
		}
		select {
		case result <- msg.Get("variable_" + varname):
		default:
		}
	})
	if err != nil {
		return "", err
	}
	cell.set(sub)

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		e.DeregisterEvent(sub)
		return "", ctx.Err()
	case <-e.Done():
		return "", ErrConnectionLost
	}
}

// PlaybackSync plays path and blocks until its CHANNEL_EXECUTE_COMPLETE,
// returning that event.
func (e *Engine) PlaybackSync(ctx context.Context, path, channelUUID string, lock bool) (*Message, error) {
	if _, err := e.Playback(ctx, path, "", channelUUID, lock); err != nil {
		return nil, err
	}

	result := make(chan *Message, 1)
	cell := &subscriptionCell{}
	sub, err := e.RegisterEvent(ctx, "CHANNEL_EXECUTE_COMPLETE", true, func(msg *Message) {
		if msg.Get("Application") != "playback" {
			return
		}
		if s := cell.get(); s != nil {
			e.DeregisterEvent(s)
		}
		select {
		case result <- msg:
		default:
		}
	})
	if err != nil {
		return nil, err
	}
	cell.set(sub)

	select {
	case msg := <-result:
		return msg, nil
	case <-ctx.Done():
		e.DeregisterEvent(sub)
		return nil, ctx.Err()
	case <-e.Done():
		return nil, ErrConnectionLost
	}
}

// --- API commands (sendApi / sendBgApi) ---

// ApiDomainExists checks whether a domain is configured.
func (e *Engine) ApiDomainExists(ctx context.Context, domain string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "domain_exists "+domain, background)
}

// ApiGlobalGetVar returns the value of a single global variable.
func (e *Engine) ApiGlobalGetVar(ctx context.Context, variable string, background bool) (string, error) {
	msg, err := apiCommand(e, ctx, "global_getvar "+variable, background)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(msg.Body)), nil
}

// ApiGlobalGetVars returns every global variable as a map, parsing the
// flat KEY=VALUE\n... body FreeSWITCH returns for a variable-less
// global_getvar.
func (e *Engine) ApiGlobalGetVars(ctx context.Context, background bool) (map[string]string, error) {
	msg, err := apiCommand(e, ctx, "global_getvar", background)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, line := range strings.Split(string(msg.Body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out, nil
}

// ApiHupAll hangs up every channel matching cause/variable/value. variable
// and value may both be empty to match all channels with cause alone.
func (e *Engine) ApiHupAll(ctx context.Context, cause, variable, value string, background bool) (*Message, error) {
	cmd := strings.TrimSpace(strings.Join([]string{"hupall", cause, variable, value}, " "))
	return apiCommand(e, ctx, cmd, background)
}

// ApiLoad loads an external module.
func (e *Engine) ApiLoad(ctx context.Context, moduleName string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "load "+moduleName, background)
}

// ApiReload reloads an external module.
func (e *Engine) ApiReload(ctx context.Context, moduleName string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "reload "+moduleName, background)
}

// ApiReloadXML reloads the XML configuration.
func (e *Engine) ApiReloadXML(ctx context.Context, background bool) (*Message, error) {
	return apiCommand(e, ctx, "reloadxml", background)
}

// ApiUnload unloads an external module.
func (e *Engine) ApiUnload(ctx context.Context, moduleName string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "unload "+moduleName, background)
}

// ApiStatus fetches FreeSWITCH's core status.
func (e *Engine) ApiStatus(ctx context.Context, background bool) (*Message, error) {
	return apiCommand(e, ctx, "status", background)
}

// ApiVersion fetches the FreeSWITCH version string.
func (e *Engine) ApiVersion(ctx context.Context, background bool) (*Message, error) {
	return apiCommand(e, ctx, "version", background)
}

// ApiOriginate originates a new channel and connects it to either an
// application (with args) or an extension in a dialplan/context, setting
// channelVars as a leading {k=v,k=v} prefix on the dial string.
func (e *Engine) ApiOriginate(ctx context.Context, url, application, appArgs, extension, dialplan, context_, cidName, cidNum, timeout string, channelVars map[string]string, background bool) (*Message, error) {
	if len(channelVars) > 0 {
		pairs := make([]string, 0, len(channelVars))
		for k, v := range channelVars {
			pairs = append(pairs, k+"="+v)
		}
		url = "{" + strings.Join(pairs, ",") + "}" + url
	}

	cmd := "originate " + url
	if application != "" {
		app := "&" + application
		if appArgs != "" {
			app += "(" + appArgs + ")"
		}
		cmd += " " + app
	} else {
		cmd += " " + extension
	}
	cmd = strings.TrimRight(strings.Join([]string{cmd, dialplan, context_, cidName, cidNum, timeout}, " "), " ")
	return apiCommand(e, ctx, cmd, background)
}

// ApiPause pauses or resumes a channel.
func (e *Engine) ApiPause(ctx context.Context, uuid string, flag, background bool) (*Message, error) {
	state := "off"
	if flag {
		state = "on"
	}
	return apiCommand(e, ctx, "pause "+uuid+" "+state, background)
}

// ApiUUIDBreak discontinues the media currently being sent to a channel.
func (e *Engine) ApiUUIDBreak(ctx context.Context, uuid string, all, background bool) (*Message, error) {
	cmd := "uuid_break " + uuid
	if all {
		cmd += " all"
	}
	return apiCommand(e, ctx, cmd, background)
}

// ApiUUIDBroadcast plays path to a specific channel leg.
func (e *Engine) ApiUUIDBroadcast(ctx context.Context, uuid, path, leg string, background bool) (*Message, error) {
	if leg == "" {
		leg = "aleg"
	}
	return apiCommand(e, ctx, strings.Join([]string{"uuid_broadcast", uuid, path, leg}, " "), background)
}

// ApiUUIDChat sends a chat message to a channel.
func (e *Engine) ApiUUIDChat(ctx context.Context, uuid, msg string, background bool) (*Message, error) {
	return apiCommand(e, ctx, strings.Join([]string{"uuid_chat", uuid, msg}, " "), background)
}

// ApiUUIDDeflect sends a SIP REFER to deflect an answered call off FreeSWITCH.
func (e *Engine) ApiUUIDDeflect(ctx context.Context, uuid, sipURI string, background bool) (*Message, error) {
	return apiCommand(e, ctx, strings.Join([]string{"uuid_deflect", uuid, sipURI}, " "), background)
}

// ApiUUIDDisplace starts or stops displacing a channel's audio with path.
func (e *Engine) ApiUUIDDisplace(ctx context.Context, uuid, switchOp, path string, limitSeconds int, mux, background bool) (*Message, error) {
	parts := []string{"uuid_displace", uuid, switchOp, path, strconv.Itoa(limitSeconds)}
	if mux {
		parts = append(parts, "mux")
	}
	return apiCommand(e, ctx, strings.Join(parts, " "), background)
}

// ApiUUIDExists checks whether a channel uuid exists.
func (e *Engine) ApiUUIDExists(ctx context.Context, uuid string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "uuid_exists "+uuid, background)
}

// ApiUUIDFlushDTMF flushes queued DTMF digits on a channel.
func (e *Engine) ApiUUIDFlushDTMF(ctx context.Context, uuid string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "uuid_flush_dtmf "+uuid, background)
}

// ApiUUIDHold places a call on hold, or takes it off hold.
func (e *Engine) ApiUUIDHold(ctx context.Context, uuid string, off, background bool) (*Message, error) {
	if off {
		return apiCommand(e, ctx, "uuid_hold off "+uuid, background)
	}
	return apiCommand(e, ctx, "uuid_hold "+uuid, background)
}

// ApiUUIDKill kills a channel, optionally with a specific hangup cause.
func (e *Engine) ApiUUIDKill(ctx context.Context, uuid, cause string, background bool) (*Message, error) {
	cmd := "uuid_kill " + uuid
	if cause != "" {
		cmd += " " + cause
	}
	return apiCommand(e, ctx, cmd, background)
}

// ApiUUIDMedia reinvites a channel to bridge its media directly, or
// reverts it back through the core.
func (e *Engine) ApiUUIDMedia(ctx context.Context, uuid string, off, background bool) (*Message, error) {
	if off {
		return apiCommand(e, ctx, "uuid_media off "+uuid, background)
	}
	return apiCommand(e, ctx, "uuid_media "+uuid, background)
}

// ApiUUIDPark parks a channel.
func (e *Engine) ApiUUIDPark(ctx context.Context, uuid string, background bool) (*Message, error) {
	return apiCommand(e, ctx, "uuid_park "+uuid, background)
}

// ApiUUIDSendDTMF sends DTMF digits to a channel.
func (e *Engine) ApiUUIDSendDTMF(ctx context.Context, uuid, dtmf string, background bool) (*Message, error) {
	return apiCommand(e, ctx, strings.Join([]string{"uuid_send_dtmf", uuid, dtmf}, " "), background)
}
