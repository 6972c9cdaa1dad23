// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"io/fs"
	"time"
)

// HandleID is the opaque identity the engine assigns to a handle. It is
// stable for the handle's lifetime and is the key both sides of the bridge
// use to refer to it.
type HandleID uint64

// HandleType tags the kind of asynchronous object behind a handle.
type HandleType uint8

const (
	// HandlePoll is a file descriptor readiness watch.
	HandlePoll HandleType = iota + 1
	// HandleFSPoll is a stat-based path watch.
	HandleFSPoll
)

// String returns a human-readable representation of the handle type.
func (t HandleType) String() string {
	switch t {
	case HandlePoll:
		return "poll"
	case HandleFSPoll:
		return "fs_poll"
	default:
		return "unknown"
	}
}

// RunMode governs the blocking behavior of a single drive call.
type RunMode int32

const (
	// RunDefault drives the loop until no active or referenced handles
	// remain, or Stop is requested.
	RunDefault RunMode = iota
	// RunOnce polls for I/O once, blocking until at least one event fires.
	RunOnce
	// RunNowait polls for I/O once without blocking.
	RunNowait
)

// modeIdle marks the run-mode register when no drive call is in progress.
const modeIdle RunMode = -1

// runModeNames is in the same order as the RunMode constants.
var runModeNames = [...]string{"default", "once", "nowait"}

// String returns the run mode's wire name, or "" for an unknown mode.
func (m RunMode) String() string {
	if m >= 0 && int(m) < len(runModeNames) {
		return runModeNames[m]
	}
	return ""
}

// ParseRunMode translates a mode name into a RunMode. The empty string
// selects RunDefault.
func ParseRunMode(s string) (RunMode, error) {
	if s == "" {
		return RunDefault, nil
	}
	for i, name := range runModeNames {
		if s == name {
			return RunMode(i), nil
		}
	}
	return 0, ErrBadRunMode
}

// EngineCaps reports which optional poll event kinds the engine build
// supports. Event-mask parsing is gated on it.
type EngineCaps struct {
	Disconnect  bool
	Prioritized bool
}

// EngineOption selects an engine-wide configuration knob. See
// [Loop.Configure] for the string surface.
type EngineOption uint8

const (
	// OptBlockSignal blocks a signal while the engine waits for events. The
	// argument is the signal number; only SIGPROF is supported.
	OptBlockSignal EngineOption = iota + 1
	// OptIdleTime enables accumulation of provider idle time.
	OptIdleTime
)

// FileStatus is the subset of stat information an fs-poll watch compares
// between observations.
type FileStatus struct {
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
}

// Trampoline signatures. The engine invokes these synchronously from within
// its own dispatch step; status follows the engine convention of negative
// errno values for failure.
type (
	// PollTrampoline delivers a readiness event for a poll handle.
	PollTrampoline func(id HandleID, status int, events PollEvents)
	// FSPollTrampoline delivers a stat change (or stat failure) for an
	// fs-poll handle. prev and curr are nil when unavailable.
	FSPollTrampoline func(id HandleID, status int, prev, curr *FileStatus)
	// CloseTrampoline signals that a handle has fully closed; the engine
	// holds no further reference to the identity after it returns.
	CloseTrampoline func(id HandleID)
)

// Engine is the native asynchronous I/O engine boundary. Implementations
// provide per-handle-type init/start/stop primitives, a single close
// primitive, the drive loop, and introspection queries.
//
// All Engine methods except Stop must be called from the single goroutine
// that drives the loop. Stop is safe to call from any goroutine and must
// wake a blocked drive call.
//
// Failures are reported as [*StatusError] values carrying a POSIX-style
// errno, mirroring the engine's signed status codes.
type Engine interface {
	// PollInit creates a readiness watch for fd. socket selects
	// socket-specific validation. The trampoline is retained for the
	// handle's lifetime.
	PollInit(fd int, socket bool, tramp PollTrampoline) (HandleID, error)
	// PollStart begins (or atomically re-arms) monitoring for the given
	// event set.
	PollStart(id HandleID, events PollEvents) error
	// PollStop halts monitoring. Idempotent.
	PollStop(id HandleID) error

	// FSPollInit creates a stat-based path watch.
	FSPollInit(tramp FSPollTrampoline) (HandleID, error)
	// FSPollStart begins watching path, checking every interval. A no-op if
	// the watch is already active.
	FSPollStart(id HandleID, path string, interval time.Duration) error
	// FSPollStop halts the watch. Idempotent.
	FSPollStop(id HandleID) error
	// FSPollPath reports the watched path; EINVAL if the watch is inactive.
	FSPollPath(id HandleID) (string, error)

	// CloseHandle stops any monitoring, marks the handle closing, and
	// arranges for tramp to fire from a subsequent drive iteration. After
	// tramp returns the identity is forgotten by the engine.
	CloseHandle(id HandleID, tramp CloseTrampoline) error

	// Drive runs the engine's dispatch loop in the given mode. The boolean
	// reports whether further callbacks may be expected.
	Drive(mode RunMode) (bool, error)
	// Stop requests the current or next drive call to return at the next
	// safe iteration boundary.
	Stop()
	// Alive reports whether any active or closing handles remain.
	Alive() bool

	// Now returns the cached monotonic timestamp in milliseconds.
	Now() uint64
	// UpdateTime refreshes the cached timestamp.
	UpdateTime()

	// BackendFD returns the poll primitive's descriptor, or -1 when
	// unsupported.
	BackendFD() int
	// BackendTimeout returns the next computed poll timeout in
	// milliseconds, or -1 for no timeout.
	BackendTimeout() int

	// Configure applies an engine-wide option. Must precede the first Drive.
	Configure(opt EngineOption, arg int) error
	// IdleTime reports accumulated provider idle time; zero unless
	// OptIdleTime was configured.
	IdleTime() time.Duration

	// Caps reports the optional event kinds this engine build supports.
	Caps() EngineCaps

	// Close releases engine resources. EBUSY while handles remain.
	Close() error
}
