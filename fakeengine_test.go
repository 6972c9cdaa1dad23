// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// fakeEngine is a scripted Engine for exercising the bridge, dispatch, and
// controller layers without a real poller. Tests fire trampolines directly.
type fakeEngine struct {
	caps    EngineCaps
	nextID  HandleID
	handles map[HandleID]*fakeEngineHandle
	closing []HandleID

	stopped    bool
	configured []EngineOption
	now        uint64
	idle       time.Duration
	closed     bool

	// driveFn, when set, replaces the default drive behavior (deliver
	// pending close callbacks, report Alive).
	driveFn func(mode RunMode) (bool, error)
}

type fakeEngineHandle struct {
	typ     HandleType
	active  bool
	closing bool
	events  PollEvents
	path    string

	pollTramp  PollTrampoline
	fsTramp    FSPollTrampoline
	closeTramp CloseTrampoline
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		caps:    EngineCaps{Disconnect: true, Prioritized: true},
		handles: make(map[HandleID]*fakeEngineHandle),
	}
}

func (e *fakeEngine) alloc(typ HandleType) (HandleID, *fakeEngineHandle) {
	e.nextID++
	h := &fakeEngineHandle{typ: typ}
	e.handles[e.nextID] = h
	return e.nextID, h
}

func (e *fakeEngine) PollInit(fd int, socket bool, tramp PollTrampoline) (HandleID, error) {
	if fd < 0 {
		return 0, statusError(unix.EBADF)
	}
	id, h := e.alloc(HandlePoll)
	h.pollTramp = tramp
	return id, nil
}

func (e *fakeEngine) PollStart(id HandleID, events PollEvents) error {
	h := e.handles[id]
	h.events = events
	h.active = true
	return nil
}

func (e *fakeEngine) PollStop(id HandleID) error {
	e.handles[id].active = false
	return nil
}

func (e *fakeEngine) FSPollInit(tramp FSPollTrampoline) (HandleID, error) {
	id, h := e.alloc(HandleFSPoll)
	h.fsTramp = tramp
	return id, nil
}

func (e *fakeEngine) FSPollStart(id HandleID, path string, interval time.Duration) error {
	h := e.handles[id]
	h.path = path
	h.active = true
	return nil
}

func (e *fakeEngine) FSPollStop(id HandleID) error {
	e.handles[id].active = false
	return nil
}

func (e *fakeEngine) FSPollPath(id HandleID) (string, error) {
	h := e.handles[id]
	if !h.active {
		return "", statusError(unix.EINVAL)
	}
	return h.path, nil
}

func (e *fakeEngine) CloseHandle(id HandleID, tramp CloseTrampoline) error {
	h := e.handles[id]
	if h == nil || h.closing {
		return statusError(unix.EINVAL)
	}
	h.active = false
	h.closing = true
	h.closeTramp = tramp
	e.closing = append(e.closing, id)
	return nil
}

func (e *fakeEngine) Drive(mode RunMode) (bool, error) {
	if e.driveFn != nil {
		return e.driveFn(mode)
	}
	e.runClosing()
	return e.Alive(), nil
}

func (e *fakeEngine) runClosing() {
	pending := e.closing
	e.closing = nil
	for _, id := range pending {
		h := e.handles[id]
		delete(e.handles, id)
		h.closeTramp(id)
	}
}

func (e *fakeEngine) Stop() { e.stopped = true }

func (e *fakeEngine) Alive() bool {
	if len(e.closing) > 0 {
		return true
	}
	for _, h := range e.handles {
		if h.active {
			return true
		}
	}
	return false
}

func (e *fakeEngine) Now() uint64    { return e.now }
func (e *fakeEngine) UpdateTime()    { e.now++ }
func (e *fakeEngine) BackendFD() int { return -1 }

func (e *fakeEngine) BackendTimeout() int {
	if e.Alive() {
		return 0
	}
	return -1
}

func (e *fakeEngine) Configure(opt EngineOption, arg int) error {
	e.configured = append(e.configured, opt)
	return nil
}

func (e *fakeEngine) IdleTime() time.Duration { return e.idle }
func (e *fakeEngine) Caps() EngineCaps        { return e.caps }

func (e *fakeEngine) Close() error {
	if len(e.handles) > 0 {
		return statusError(unix.EBUSY)
	}
	e.closed = true
	return nil
}

// firePoll synthesizes a readiness event for a poll handle.
func (e *fakeEngine) firePoll(t *testing.T, id HandleID, status int, events PollEvents) {
	t.Helper()
	h := e.handles[id]
	if h == nil {
		t.Fatalf("firePoll: no engine handle %d", id)
	}
	h.pollTramp(id, status, events)
}

// fireFSPoll synthesizes a stat transition for an fs-poll handle.
func (e *fakeEngine) fireFSPoll(t *testing.T, id HandleID, status int, prev, curr *FileStatus) {
	t.Helper()
	h := e.handles[id]
	if h == nil {
		t.Fatalf("fireFSPoll: no engine handle %d", id)
	}
	h.fsTramp(id, status, prev, curr)
}
