// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"time"

	"golang.org/x/sys/unix"
)

// FSPoll watches a filesystem path by periodic stat, reporting whenever the
// observed metadata changes. Unlike inotify-style watchers it works on any
// filesystem, at the cost of polling granularity.
type FSPoll struct {
	*handle
}

// NewFSPoll creates an fs-poll handle.
func (l *Loop) NewFSPoll() (*FSPoll, error) {
	if l.closed {
		return nil, ErrLoopClosed
	}
	id, err := l.engine.FSPollInit(l.fsPollTrampoline)
	if err != nil {
		return nil, err
	}
	f := &FSPoll{handle: l.newHandle(id, HandleFSPoll)}
	f.owner = f
	return f, nil
}

// Start begins watching path, re-statting on the given interval. The
// callback receives the previous and current status on change, or an error
// when the stat fails (reported once per distinct failure, not once per
// tick). Starting an already-active handle is a no-op, matching the
// convention that a running watch is not silently retargeted.
func (f *FSPoll) Start(path string, interval time.Duration, cb FSPollCallback) error {
	if cb == nil {
		return ErrNilCallback
	}
	if f.closing || f.closed {
		return statusError(unix.EINVAL)
	}
	if f.active {
		return nil
	}
	if err := f.loop.engine.FSPollStart(f.id, path, interval); err != nil {
		return err
	}
	f.fsCB = cb
	f.active = true
	f.loop.bridge.acquire(f.id)
	return nil
}

// Stop cancels the watch. Stopping an inactive handle is a no-op.
func (f *FSPoll) Stop() error {
	if f.closing || f.closed {
		return statusError(unix.EINVAL)
	}
	if !f.active {
		return nil
	}
	if err := f.loop.engine.FSPollStop(f.id); err != nil {
		return err
	}
	f.fsCB = nil
	f.active = false
	f.loop.bridge.release(f.id)
	return nil
}

// Path returns the path being watched. It fails with EINVAL when the handle
// is not active.
func (f *FSPoll) Path() (string, error) {
	if !f.IsActive() {
		return "", statusError(unix.EINVAL)
	}
	return f.loop.engine.FSPollPath(f.id)
}
