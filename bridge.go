// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"fmt"
	"sync"
	"weak"
)

// bridge owns the identity <-> wrapper mapping and the keep-alive token that
// ties wrapper lifetime to engine-visible liveness rather than to host
// reachability.
//
// The resolve direction holds weak pointers so that a registered-but-idle
// wrapper (created, never started, dropped by the host) can be collected.
// While a handle's token is non-zero the bridge additionally pins the
// wrapper core with a strong reference: the engine may still call back into
// it, so it must survive even with zero host references. The token returns
// to zero exactly when the engine can provably issue no further callback
// (stopped, or close callback delivered).
//
// Under the single-threaded cooperative model every bridge operation happens
// on the loop-driving goroutine; the mutex keeps multi-loop and
// multi-goroutine embeddings safe without relying on that discipline.
type bridge struct {
	mu      sync.Mutex
	handles map[HandleID]weak.Pointer[handle]
	pins    map[HandleID]*handle
	tokens  map[HandleID]uint32
}

func newBridge() *bridge {
	return &bridge{
		handles: make(map[HandleID]weak.Pointer[handle]),
		pins:    make(map[HandleID]*handle),
		tokens:  make(map[HandleID]uint32),
	}
}

// register establishes the bidirectional mapping for a newly created handle.
// Double registration means the identity invariant is already broken, so it
// is a programming-error fault, not a recoverable error.
func (b *bridge) register(id HandleID, h *handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handles[id]; ok {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: identity %d registered twice", id))
	}
	b.handles[id] = weak.Make(h)
}

// resolve recovers the wrapper core for an identity the engine still knows
// about. It is called from trampolines only, where the handle is pinned by a
// non-zero token; a miss here means the mapping was torn down while the
// engine could still call back, which is unrecoverable.
func (b *bridge) resolve(id HandleID) *handle {
	b.mu.Lock()
	wp, ok := b.handles[id]
	b.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: resolve of unregistered identity %d", id))
	}
	h := wp.Value()
	if h == nil {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: identity %d collected while engine-referenced", id))
	}
	return h
}

// lookup is the tolerant variant used by Walk: identities may disappear or
// their wrappers may have been collected between snapshot and visit.
func (b *bridge) lookup(id HandleID) (*handle, bool) {
	b.mu.Lock()
	wp, ok := b.handles[id]
	b.mu.Unlock()
	if !ok {
		return nil, false
	}
	h := wp.Value()
	return h, h != nil
}

// acquire increments the keep-alive token, pinning the wrapper on the
// zero -> one transition. Independent active aspects of one handle coalesce:
// callers acquire once per lifecycle transition (start, close), never per
// watched condition.
func (b *bridge) acquire(id HandleID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wp, ok := b.handles[id]
	if !ok {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: acquire of unregistered identity %d", id))
	}
	if b.tokens[id] == 0 {
		h := wp.Value()
		if h == nil {
			panic(fmt.Sprintf("loopbridge: bridge corrupt: acquire of collected identity %d", id))
		}
		b.pins[id] = h
	}
	b.tokens[id]++
}

// release decrements the keep-alive token, unpinning the wrapper on the
// one -> zero transition. A release below zero is a programming-error fault.
func (b *bridge) release(id HandleID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.tokens[id]
	if n == 0 {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: keep-alive token underflow for identity %d", id))
	}
	n--
	if n == 0 {
		delete(b.tokens, id)
		delete(b.pins, id)
	} else {
		b.tokens[id] = n
	}
}

// unregister removes both mapping directions. Called only after the engine
// confirms the handle fully closed; resolve on the identity is invalid
// afterwards.
func (b *bridge) unregister(id HandleID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.handles[id]; !ok {
		panic(fmt.Sprintf("loopbridge: bridge corrupt: unregister of unknown identity %d", id))
	}
	delete(b.handles, id)
	delete(b.pins, id)
	delete(b.tokens, id)
}

// token reports the current keep-alive count for an identity.
func (b *bridge) token(id HandleID) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens[id]
}

// ids returns a snapshot of all registered identities, so iteration stays
// safe against callbacks that close or mutate handles mid-walk.
func (b *bridge) ids() []HandleID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]HandleID, 0, len(b.handles))
	for id := range b.handles {
		out = append(out, id)
	}
	return out
}

// size reports the number of registered identities.
func (b *bridge) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handles)
}
