// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T, opts ...LoopOption) (*Loop, *fakeEngine) {
	t.Helper()
	engine := newFakeEngine()
	l, err := New(append([]LoopOption{WithEngine(engine)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, engine
}

func TestDriveModeVisibleDuringDrive(t *testing.T) {
	l, engine := newTestLoop(t)

	if mode, ok := l.Mode(); ok || mode != "" {
		t.Errorf("idle loop reported mode %q, ok=%v", mode, ok)
	}

	var observed string
	var observedOK bool
	engine.driveFn = func(mode RunMode) (bool, error) {
		observed, observedOK = l.Mode()
		return false, nil
	}

	if _, err := l.Drive("nowait"); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !observedOK || observed != "nowait" {
		t.Errorf("mode during drive = %q, ok=%v; want nowait", observed, observedOK)
	}
	if _, ok := l.Mode(); ok {
		t.Error("mode register not reset after drive returned")
	}
}

func TestDriveEmptyModeIsDefault(t *testing.T) {
	l, engine := newTestLoop(t)

	var got RunMode
	engine.driveFn = func(mode RunMode) (bool, error) {
		got = mode
		return false, nil
	}
	if _, err := l.Drive(""); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if got != RunDefault {
		t.Errorf("Drive(\"\") delegated mode %v, want RunDefault", got)
	}
}

func TestDriveRejectsUnknownMode(t *testing.T) {
	l, _ := newTestLoop(t)
	if _, err := l.Drive("forever"); !errors.Is(err, ErrBadRunMode) {
		t.Errorf("Drive(forever) = %v, want ErrBadRunMode", err)
	}
}

func TestDriveNonReentrant(t *testing.T) {
	l, engine := newTestLoop(t)

	var inner error
	engine.driveFn = func(mode RunMode) (bool, error) {
		_, inner = l.Drive("nowait")
		return false, nil
	}
	if _, err := l.Drive("once"); err != nil {
		t.Fatalf("outer Drive: %v", err)
	}
	if !errors.Is(inner, ErrAlreadyDriving) {
		t.Errorf("nested Drive = %v, want ErrAlreadyDriving", inner)
	}

	// The register must have been reset despite the failed nested call.
	if _, err := l.Drive("nowait"); err != nil {
		t.Errorf("Drive after nested failure: %v", err)
	}
}

func TestModeResetOnEngineError(t *testing.T) {
	l, engine := newTestLoop(t)

	engine.driveFn = func(mode RunMode) (bool, error) {
		return false, statusError(unix.EIO)
	}
	if _, err := l.Drive("once"); !errors.Is(err, unix.EIO) {
		t.Fatalf("Drive = %v, want EIO", err)
	}
	if _, ok := l.Mode(); ok {
		t.Error("mode register stuck after engine error")
	}
}

func TestStopIdleLoopIsNoop(t *testing.T) {
	l, engine := newTestLoop(t)
	l.Stop()
	if engine.stopped {
		t.Error("Stop on an idle loop reached the engine")
	}
}

func TestStopDuringDriveReachesEngine(t *testing.T) {
	l, engine := newTestLoop(t)
	engine.driveFn = func(mode RunMode) (bool, error) {
		l.Stop()
		return false, nil
	}
	if _, err := l.Drive("once"); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !engine.stopped {
		t.Error("Stop from inside drive did not reach the engine")
	}
}

func TestConfigureBeforeFirstDriveOnly(t *testing.T) {
	l, engine := newTestLoop(t)

	if err := l.Configure("metrics_idle_time"); err != nil {
		t.Fatalf("Configure(metrics_idle_time): %v", err)
	}
	if err := l.Configure("block_signal", "sigprof"); err != nil {
		t.Fatalf("Configure(block_signal, sigprof): %v", err)
	}
	if len(engine.configured) != 2 {
		t.Fatalf("engine saw %d configure calls, want 2", len(engine.configured))
	}

	if _, err := l.Drive("nowait"); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if err := l.Configure("metrics_idle_time"); !errors.Is(err, ErrAlreadyDriven) {
		t.Errorf("Configure after drive = %v, want ErrAlreadyDriven", err)
	}
}

func TestConfigureValidation(t *testing.T) {
	l, _ := newTestLoop(t)

	if err := l.Configure("turbo"); !errors.Is(err, ErrBadConfigOption) {
		t.Errorf("Configure(turbo) = %v, want ErrBadConfigOption", err)
	}
	if err := l.Configure("block_signal", "sigusr1"); !errors.Is(err, unix.EINVAL) {
		t.Errorf("Configure(block_signal, sigusr1) = %v, want EINVAL", err)
	}
	if err := l.Configure("block_signal"); !errors.Is(err, unix.EINVAL) {
		t.Errorf("Configure(block_signal) with no arg = %v, want EINVAL", err)
	}
	if err := l.Configure("metrics_idle_time", "extra"); !errors.Is(err, unix.EINVAL) {
		t.Errorf("Configure(metrics_idle_time, extra) = %v, want EINVAL", err)
	}
}

func TestBackendFDUnsupported(t *testing.T) {
	l, _ := newTestLoop(t)
	if fd, ok := l.BackendFD(); ok {
		t.Errorf("BackendFD = (%d, true) on an engine without one", fd)
	}
}

func TestCloseRefusedWhileHandlesRemain(t *testing.T) {
	l, _ := newTestLoop(t)

	p, err := l.NewPoll(3)
	if err != nil {
		t.Fatalf("NewPoll: %v", err)
	}
	if err := l.Close(); !errors.Is(err, unix.EBUSY) {
		t.Fatalf("Close with live handle = %v, want EBUSY", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("handle Close: %v", err)
	}
	// Still registered until the close callback delivers.
	if err := l.Close(); !errors.Is(err, unix.EBUSY) {
		t.Fatalf("Close with closing handle = %v, want EBUSY", err)
	}

	if _, err := l.Drive("nowait"); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close after teardown: %v", err)
	}

	// Closed loop rejects further work.
	if _, err := l.NewPoll(3); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("NewPoll on closed loop = %v, want ErrLoopClosed", err)
	}
	if _, err := l.Drive("nowait"); !errors.Is(err, ErrLoopClosed) {
		t.Errorf("Drive on closed loop = %v, want ErrLoopClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
}

func TestWalkVisitsLiveHandles(t *testing.T) {
	l, _ := newTestLoop(t)

	p1, err := l.NewPoll(3)
	if err != nil {
		t.Fatalf("NewPoll: %v", err)
	}
	f1, err := l.NewFSPoll()
	if err != nil {
		t.Fatalf("NewFSPoll: %v", err)
	}

	seen := make(map[HandleID]HandleType)
	l.Walk(func(h Handle) { seen[h.ID()] = h.Type() })
	if len(seen) != 2 || seen[p1.ID()] != HandlePoll || seen[f1.ID()] != HandleFSPoll {
		t.Fatalf("Walk saw %v", seen)
	}

	// A fully closed handle disappears from walks.
	if err := p1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Drive("nowait"); err != nil {
		t.Fatalf("Drive: %v", err)
	}
	seen = make(map[HandleID]HandleType)
	l.Walk(func(h Handle) { seen[h.ID()] = h.Type() })
	if len(seen) != 1 || seen[f1.ID()] != HandleFSPoll {
		t.Fatalf("Walk after close saw %v", seen)
	}

	// A panicking visitor must not abort the walk.
	var visits int
	l.Walk(func(Handle) {
		visits++
		panic("visitor")
	})
	if visits != 1 {
		t.Errorf("walk visits = %d, want 1", visits)
	}

	l.Walk(nil) // must not panic
}

func TestWalkTolerantOfStopDuringVisit(t *testing.T) {
	l, _ := newTestLoop(t)

	var polls []*Poll
	for i := 0; i < 3; i++ {
		p, err := l.NewPoll(3 + i)
		if err != nil {
			t.Fatalf("NewPoll: %v", err)
		}
		if err := p.Start("r", func(error, string) {}); err != nil {
			t.Fatalf("Start: %v", err)
		}
		polls = append(polls, p)
	}

	visits := 0
	l.Walk(func(h Handle) {
		visits++
		// Stopping (even closing) the visited handle must not disturb the
		// iteration over the rest.
		p := h.(*Poll)
		if err := p.Stop(); err != nil {
			t.Errorf("Stop during walk: %v", err)
		}
		if err := p.Close(); err != nil {
			t.Errorf("Close during walk: %v", err)
		}
	})
	if visits != 3 {
		t.Errorf("walk visited %d handles, want 3", visits)
	}
	for _, p := range polls {
		if p.IsActive() {
			t.Error("handle still active after walk stop")
		}
	}
}

func TestAliveTracksEngine(t *testing.T) {
	l, _ := newTestLoop(t)
	if l.Alive() {
		t.Error("fresh loop reports alive")
	}
	p, err := l.NewPoll(3)
	if err != nil {
		t.Fatalf("NewPoll: %v", err)
	}
	if l.Alive() {
		t.Error("inactive handle keeps loop alive")
	}
	if err := p.Start("r", func(error, string) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !l.Alive() {
		t.Error("active handle does not keep loop alive")
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if l.Alive() {
		t.Error("stopped handle keeps loop alive")
	}
}

func TestStatusErrorSurface(t *testing.T) {
	err := statusErrno(-int(unix.ENOENT))
	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("errors.Is(ENOENT) failed for %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("errors.As(*StatusError) failed for %v", err)
	}
	if se.Name() != "ENOENT" {
		t.Errorf("Name = %q, want ENOENT", se.Name())
	}
	if statusErrno(0) != nil || statusErrno(7) != nil {
		t.Error("non-negative statuses must map to nil")
	}
}
