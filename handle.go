// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import "golang.org/x/sys/unix"

// Handle is the host-visible face of a live engine handle. Exactly one
// wrapper exists per live handle; the wrapper is what host code references,
// the HandleID is what the engine references.
type Handle interface {
	// ID returns the engine-assigned identity.
	ID() HandleID
	// Type returns the handle's type tag.
	Type() HandleType
	// IsActive reports whether the engine is monitoring on this handle's
	// behalf (e.g. a started watch).
	IsActive() bool
	// IsClosing reports whether Close has been requested but the close
	// callback has not yet fired.
	IsClosing() bool
	// Close stops any monitoring and requests teardown; cb (optional) fires
	// from a drive iteration once the engine has fully released the handle.
	Close(cb ...func()) error
}

// handle is the wrapper core shared by all handle types: lifecycle flags
// plus the callback slots the invocation protocol dispatches into. The
// bridge registers and pins this core; owner points back at the typed
// wrapper so Walk can hand out the host-facing value.
//
// Fields are written only from the loop-driving goroutine.
type handle struct {
	loop  *Loop
	owner Handle
	id    HandleID
	typ   HandleType

	active  bool
	closing bool
	closed  bool

	// Callback slots, one per event kind. Replaced on each start-style
	// call, cleared on stop and close.
	pollCB  PollCallback
	fsCB    FSPollCallback
	closeCB func()
}

func (h *handle) ID() HandleID     { return h.id }
func (h *handle) Type() HandleType { return h.typ }

func (h *handle) IsActive() bool  { return h.active && !h.closing }
func (h *handle) IsClosing() bool { return h.closing && !h.closed }

// close is the shared teardown path. It transfers the handle's single
// keep-alive reference from the "active watch" aspect to the "pending close
// callback" aspect; the two never stack.
func (h *handle) close(cb func()) error {
	if h.closing || h.closed {
		return statusError(unix.EINVAL)
	}
	l := h.loop
	if err := l.engine.CloseHandle(h.id, l.closeTrampoline); err != nil {
		return err
	}
	h.closing = true
	h.closeCB = cb
	h.pollCB = nil
	h.fsCB = nil
	if h.active {
		h.active = false
		l.bridge.release(h.id)
	}
	l.bridge.acquire(h.id)
	return nil
}

func (h *handle) Close(cb ...func()) error {
	var fn func()
	if len(cb) > 0 {
		fn = cb[0]
	}
	return h.close(fn)
}
