// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Standard errors.
//
// These cover misuse detected at the call boundary, before any engine
// primitive is attempted. Failures reported by the engine itself surface as
// [*StatusError] values instead.
var (
	// ErrAlreadyDriving is returned by Drive when a drive call is already in
	// progress on the loop. The loop is not reentrant.
	ErrAlreadyDriving = errors.New("loopbridge: drive already in progress")

	// ErrLoopClosed is returned when operations are attempted on a closed loop.
	ErrLoopClosed = errors.New("loopbridge: loop is closed")

	// ErrBadRunMode is returned when Drive receives a mode outside
	// {"default", "once", "nowait"}.
	ErrBadRunMode = errors.New("loopbridge: invalid run mode")

	// ErrBadEventMask is returned when a poll event mask string is not one of
	// the labels supported by the engine build.
	ErrBadEventMask = errors.New("loopbridge: invalid poll event mask")

	// ErrBadConfigOption is returned by Configure for unknown options or
	// malformed arguments.
	ErrBadConfigOption = errors.New("loopbridge: invalid loop configuration option")

	// ErrAlreadyDriven is returned by Configure once the first drive call has
	// been made; engine options must be applied before driving the loop.
	ErrAlreadyDriven = errors.New("loopbridge: loop already driven; configure before the first drive call")

	// ErrNilCallback is returned when a start-style operation is given a nil
	// callback.
	ErrNilCallback = errors.New("loopbridge: callback must not be nil")

	// ErrEngineUnsupported is returned by New on platforms without a bundled
	// engine when no engine was supplied via WithEngine.
	ErrEngineUnsupported = errors.New("loopbridge: no native engine for this platform")
)

// StatusError is a named error translated from a negative engine status
// code. The code is a POSIX-style errno; Name returns the conventional
// constant name (e.g. "EBADF").
//
// StatusError unwraps to the underlying [syscall.Errno], so
// errors.Is(err, unix.EBADF) works as expected.
type StatusError struct {
	Errno syscall.Errno
}

func statusError(errno syscall.Errno) *StatusError {
	return &StatusError{Errno: errno}
}

// statusErrno converts a signed engine status to an error, nil for
// non-negative statuses.
func statusErrno(status int) error {
	if status >= 0 {
		return nil
	}
	return statusError(syscall.Errno(-status))
}

// sysErr wraps a raw syscall failure as a StatusError, passing through
// anything that does not carry an errno.
func sysErr(err error) error {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return statusError(errno)
	}
	return err
}

// Name returns the errno constant name, e.g. "EAGAIN".
func (e *StatusError) Name() string {
	if name := unix.ErrnoName(e.Errno); name != "" {
		return name
	}
	return fmt.Sprintf("errno(%d)", int(e.Errno))
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return e.Name() + ": " + e.Errno.Error()
}

// Unwrap returns the underlying errno for use with [errors.Is] and
// [errors.As].
func (e *StatusError) Unwrap() error {
	return e.Errno
}
