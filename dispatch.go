// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"time"
)

// Host callback types. Callbacks run synchronously on the goroutine driving
// the loop, during the engine's own dispatch step; they must return before
// the engine proceeds to its next pending event.
type (
	// PollCallback receives a readiness notification: a nil error and the
	// event label on success, or a status error and an empty label.
	PollCallback func(err error, events string)
	// FSPollCallback receives a stat change: nil error with the previous
	// and current status on success, or a status error when the stat
	// itself failed.
	FSPollCallback func(err error, prev, curr *FileStatus)
)

// invoke runs a host callback with the containment guarantees of the
// invocation protocol: a panic raised inside the callback is caught at this
// boundary, reported, and never allowed to unwind into the engine's call
// stack. The loop keeps driving afterwards.
func (l *Loop) invoke(h *handle, fn func()) {
	var start time.Time
	if l.metrics != nil {
		start = time.Now()
	}
	defer func() {
		if r := recover(); r != nil {
			if l.metrics != nil {
				l.metrics.containedPanics.Add(1)
			}
			l.reportCallbackFailure(h, r)
		}
	}()
	fn()
	if l.metrics != nil {
		l.metrics.dispatched.Add(1)
		l.metrics.Latency.Record(time.Since(start))
	}
}

// pollTrampoline is handed to the engine at poll-handle init. It recovers
// the wrapper through the bridge, re-checks liveness (a stop between
// scheduling and delivery drops the event), translates the status, and
// dispatches.
func (l *Loop) pollTrampoline(id HandleID, status int, events PollEvents) {
	h := l.bridge.resolve(id)
	if !h.active || h.closing {
		return
	}
	cb := h.pollCB
	if cb == nil {
		return
	}
	var err error
	var label string
	if status < 0 {
		err = statusErrno(status)
		// The callback may ignore its error argument; surface the failure
		// on the diagnostic channel as well.
		l.logger.Err().
			Stringer("handle", h.typ).
			Int("status", status).
			Err(err).
			Log("poll handle reported an error")
	} else {
		label = labelPollEvents(events)
	}
	l.invoke(h, func() { cb(err, label) })
}

// fsPollTrampoline is the fs-poll analogue of pollTrampoline.
func (l *Loop) fsPollTrampoline(id HandleID, status int, prev, curr *FileStatus) {
	h := l.bridge.resolve(id)
	if !h.active || h.closing {
		return
	}
	cb := h.fsCB
	if cb == nil {
		return
	}
	err := statusErrno(status)
	l.invoke(h, func() { cb(err, prev, curr) })
}

// closeTrampoline completes handle teardown: the close callback (if any)
// fires, then the bridge releases the close reference and forgets the
// identity. resolve on this identity is invalid afterwards.
func (l *Loop) closeTrampoline(id HandleID) {
	h := l.bridge.resolve(id)
	cb := h.closeCB
	h.closeCB = nil
	if cb != nil {
		// IsClosing still reports true inside the close callback; teardown
		// completes only after it returns.
		l.invoke(h, cb)
	}
	h.closed = true
	l.bridge.release(id)
	l.bridge.unregister(id)
}
