// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import "golang.org/x/sys/unix"

// Poll watches an already-open file descriptor for I/O readiness. The
// descriptor stays owned by the host: the loop never reads, writes, or
// closes it, and the host must not close it while a watch is active.
//
// At most one Poll may exist per descriptor on a loop; a second NewPoll for
// the same descriptor fails with EEXIST.
type Poll struct {
	*handle
	fd int
}

// NewPoll creates a poll handle for a file descriptor (pipe, character
// device, or similar). For sockets use NewSocketPoll, which skips the
// descriptor-kind probe that some platforms require.
func (l *Loop) NewPoll(fd int) (*Poll, error) {
	return l.newPoll(fd, false)
}

// NewSocketPoll creates a poll handle for a socket descriptor.
func (l *Loop) NewSocketPoll(fd int) (*Poll, error) {
	return l.newPoll(fd, true)
}

func (l *Loop) newPoll(fd int, socket bool) (*Poll, error) {
	if l.closed {
		return nil, ErrLoopClosed
	}
	id, err := l.engine.PollInit(fd, socket, l.pollTrampoline)
	if err != nil {
		return nil, err
	}
	p := &Poll{handle: l.newHandle(id, HandlePoll), fd: fd}
	p.owner = p
	return p, nil
}

// FD returns the watched descriptor.
func (p *Poll) FD() int { return p.fd }

// Start begins (or retargets) the watch. The mask is a combination of the
// letters r (readable), w (writable), d (disconnect), and p (prioritized),
// e.g. "rw"; an empty mask means "rw". The d and p letters are rejected on
// engines that cannot report those conditions.
//
// Calling Start on an active handle atomically replaces both the event mask
// and the callback; no stop-start gap exists during which events could be
// dropped or delivered to the old callback.
func (p *Poll) Start(mask string, cb PollCallback) error {
	if cb == nil {
		return ErrNilCallback
	}
	if p.closing || p.closed {
		return statusError(unix.EINVAL)
	}
	events, err := parsePollMask(mask, p.loop.engine.Caps())
	if err != nil {
		return err
	}
	if err := p.loop.engine.PollStart(p.id, events); err != nil {
		return err
	}
	p.pollCB = cb
	if !p.active {
		p.active = true
		p.loop.bridge.acquire(p.id)
	}
	return nil
}

// Stop cancels the watch. Pending readiness that has not yet been dispatched
// is discarded. Stopping an inactive handle is a no-op.
func (p *Poll) Stop() error {
	if p.closing || p.closed {
		return statusError(unix.EINVAL)
	}
	if !p.active {
		return nil
	}
	if err := p.loop.engine.PollStop(p.id); err != nil {
		return err
	}
	p.pollCB = nil
	p.active = false
	p.loop.bridge.release(p.id)
	return nil
}
