// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"log"
)

// The loop logs through logiface so embedders can plug in whichever backend
// they already run (see internal/zlog for a zerolog-backed implementation).
// A nil logger disables logging entirely; logiface builders are nil-safe, so
// call sites never guard.

// CallbackErrorHandler receives values recovered from panicking host
// callbacks. The handle may be nil when the failure is not attributable to a
// specific handle (e.g. a Walk visitor).
type CallbackErrorHandler func(h Handle, recovered any)

// reportCallbackFailure delivers a contained callback failure to the loop's
// diagnostic channel: the configured handler if any, else the logger, else
// the process log.
func (l *Loop) reportCallbackFailure(h *handle, recovered any) {
	var hv Handle
	var kind string
	if h != nil {
		hv = h.owner
		kind = h.typ.String()
	}
	if l.onCallbackError != nil {
		l.onCallbackError(hv, recovered)
		return
	}
	if b := l.logger.Err(); b != nil {
		b.Str("handle", kind).
			Interface("recovered", recovered).
			Log("callback panicked; contained at the dispatch boundary")
		return
	}
	log.Printf("loopbridge: %s callback panicked: %v", kind, recovered)
}
