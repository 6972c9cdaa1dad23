// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/joeycumines/logiface"
	"golang.org/x/sys/unix"
)

// Loop is the host-facing controller over an Engine: it owns the handle
// bridge, the run-mode register, and the dispatch boundary through which
// every host callback runs.
//
// A Loop follows the cooperative single-driver model: exactly one goroutine
// drives it at a time, and all handle operations happen on that goroutine
// (or strictly before driving begins). Drive itself enforces non-reentrancy;
// the rest is the embedder's discipline, exactly as with any poll-based
// reactor.
type Loop struct {
	engine Engine
	bridge *bridge
	mode   *modeRegister

	logger          *logiface.Logger[logiface.Event]
	metrics         *Metrics
	onCallbackError CallbackErrorHandler

	// driven latches once the first Drive begins; some engine knobs are
	// immutable afterwards.
	driven atomic.Bool
	closed bool
}

// New creates a Loop backed by the platform engine, or by the engine given
// via WithEngine.
func New(opts ...LoopOption) (*Loop, error) {
	cfg, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	engine := cfg.engine
	if engine == nil {
		engine, err = newDefaultEngine()
		if err != nil {
			return nil, err
		}
	}
	l := &Loop{
		engine:          engine,
		bridge:          newBridge(),
		mode:            newModeRegister(),
		logger:          cfg.logger,
		onCallbackError: cfg.onCallbackError,
	}
	if cfg.metricsEnabled {
		l.metrics = &Metrics{}
	}
	return l, nil
}

// Drive runs the loop in the named mode: "" or "default" blocks until no
// handle keeps the loop alive or Stop takes effect, "once" performs one
// iteration (blocking for events at most once), "nowait" performs one
// iteration without blocking.
//
// The return value reports whether live handles remain, so callers that were
// stopped mid-flight know to drive again. Drive is non-reentrant; a call
// while another Drive is in flight fails with ErrAlreadyDriving.
func (l *Loop) Drive(mode string) (bool, error) {
	m, err := ParseRunMode(mode)
	if err != nil {
		return false, err
	}
	if l.closed {
		return false, ErrLoopClosed
	}
	if !l.mode.TryEnter(m) {
		return false, ErrAlreadyDriving
	}
	defer l.mode.Exit()
	l.driven.Store(true)
	return l.engine.Drive(m)
}

// Mode reports the run mode of the in-flight Drive call, if any. The
// second return is false when the loop is idle.
func (l *Loop) Mode() (string, bool) {
	m := l.mode.Load()
	if m == modeIdle {
		return "", false
	}
	return m.String(), true
}

// Stop requests that the in-flight Drive return as soon as the current
// iteration completes. It has no effect when the loop is not being driven.
// Safe to call from within a callback.
func (l *Loop) Stop() {
	if l.mode.Load() == modeIdle {
		return
	}
	l.engine.Stop()
}

// Alive reports whether any handle would keep a default-mode Drive running.
func (l *Loop) Alive() bool { return l.engine.Alive() }

// Now returns the loop's cached monotonic timestamp in milliseconds. The
// cache updates once per drive iteration, so consecutive reads within one
// callback batch observe the same instant.
func (l *Loop) Now() uint64 { return l.engine.Now() }

// UpdateTime refreshes the cached timestamp immediately. Useful after a
// long-running callback that would otherwise skew relative deadlines.
func (l *Loop) UpdateTime() { l.engine.UpdateTime() }

// BackendFD exposes the engine's pollable descriptor for embedding in an
// outer poll set. The second return is false when the engine has none.
func (l *Loop) BackendFD() (int, bool) {
	fd := l.engine.BackendFD()
	return fd, fd >= 0
}

// BackendTimeout returns the duration in milliseconds the engine would block
// waiting for events if driven now: 0 when work is immediately pending, -1
// when it would block indefinitely.
func (l *Loop) BackendTimeout() int { return l.engine.BackendTimeout() }

// Walk visits every registered handle. The snapshot is taken before the
// first visit, so handles created or closed by the visitor do not disturb
// iteration; a handle closed mid-walk is simply skipped. Visitor panics are
// contained like any other host callback.
func (l *Loop) Walk(fn func(Handle)) {
	if fn == nil {
		return
	}
	for _, id := range l.bridge.ids() {
		h, ok := l.bridge.lookup(id)
		if !ok || h.closed {
			continue
		}
		l.invoke(nil, func() { fn(h.owner) })
	}
}

// Configure adjusts engine behavior. It must be called before the first
// Drive; afterwards it fails with ErrAlreadyDriven.
//
// Recognized options:
//
//	"block_signal", "sigprof" — block SIGPROF on the driving thread while
//	the engine waits for events, avoiding spurious wakeups under profiling.
//	"metrics_idle_time"       — account time spent blocked in the engine,
//	readable via IdleTime.
func (l *Loop) Configure(option string, args ...string) error {
	if l.closed {
		return ErrLoopClosed
	}
	if l.driven.Load() {
		return ErrAlreadyDriven
	}
	switch option {
	case "block_signal":
		if len(args) != 1 || args[0] != "sigprof" {
			return statusError(unix.EINVAL)
		}
		return l.engine.Configure(OptBlockSignal, int(unix.SIGPROF))
	case "metrics_idle_time":
		if len(args) != 0 {
			return statusError(unix.EINVAL)
		}
		return l.engine.Configure(OptIdleTime, 0)
	default:
		return fmt.Errorf("%w: %q", ErrBadConfigOption, option)
	}
}

// IdleTime reports the cumulative time the engine has spent blocked waiting
// for events. Zero unless Configure("metrics_idle_time") was applied.
func (l *Loop) IdleTime() time.Duration { return l.engine.IdleTime() }

// Metrics returns a snapshot of dispatch metrics, or a zero snapshot when
// collection is disabled.
func (l *Loop) Metrics() MetricsSnapshot {
	if l.metrics == nil {
		return MetricsSnapshot{}
	}
	return l.metrics.snapshot()
}

// Close releases the engine. It fails with EBUSY while any handle remains
// registered (including handles whose close callback has not yet fired);
// close every handle and drive the loop until Alive reports false first.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	if l.mode.Load() != modeIdle {
		return statusError(unix.EBUSY)
	}
	if l.bridge.size() > 0 {
		return statusError(unix.EBUSY)
	}
	if err := l.engine.Close(); err != nil {
		return err
	}
	l.closed = true
	return nil
}

// newHandle allocates and registers a wrapper core. The caller sets owner
// before the handle can become visible to Walk.
func (l *Loop) newHandle(id HandleID, typ HandleType) *handle {
	h := &handle{loop: l, id: id, typ: typ}
	l.bridge.register(id, h)
	return h
}
