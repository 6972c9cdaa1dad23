// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import "sync/atomic"

// modeRegister is the per-loop run-mode register: idle outside drive calls,
// the active RunMode inside one. Single writer (Drive), multiple readers
// (Mode, including re-entrant queries from inside callbacks).
//
// Cache-line padding prevents false sharing with neighbouring loop fields.
type modeRegister struct { // betteralign:ignore
	_ [64]byte //nolint:unused
	v atomic.Int32
	_ [60]byte //nolint:unused
}

func newModeRegister() *modeRegister {
	m := &modeRegister{}
	m.v.Store(int32(modeIdle))
	return m
}

// Load returns the current register value atomically.
func (m *modeRegister) Load() RunMode {
	return RunMode(m.v.Load())
}

// TryEnter attempts the idle -> mode transition. It fails if a drive call is
// already in progress, which is what makes Drive non-reentrant.
func (m *modeRegister) TryEnter(mode RunMode) bool {
	return m.v.CompareAndSwap(int32(modeIdle), int32(mode))
}

// Exit resets the register to idle. Called on every Drive return path,
// including engine errors, so Mode never observes a stale value.
func (m *modeRegister) Exit() {
	m.v.Store(int32(modeIdle))
}
