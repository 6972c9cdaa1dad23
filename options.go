// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"github.com/joeycumines/logiface"
)

// loopOptions holds configuration options for Loop creation.
type loopOptions struct {
	engine          Engine
	logger          *logiface.Logger[logiface.Event]
	metricsEnabled  bool
	onCallbackError CallbackErrorHandler
}

// --- Loop Options ---

// LoopOption configures a Loop instance.
type LoopOption interface {
	applyLoop(*loopOptions) error
}

// loopOptionImpl implements LoopOption.
type loopOptionImpl struct {
	applyLoopFunc func(*loopOptions) error
}

func (l *loopOptionImpl) applyLoop(opts *loopOptions) error {
	return l.applyLoopFunc(opts)
}

// WithEngine supplies the backing engine. The default is the platform
// engine (epoll on Linux); tests substitute fakes through this option.
func WithEngine(engine Engine) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.engine = engine
		return nil
	}}
}

// WithLogger sets the logger for loop diagnostics (contained callback
// panics, poll status errors). A nil logger, which is the default, disables
// logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithMetrics enables callback dispatch metrics collection on the Loop.
// When enabled, metrics can be accessed via Loop.Metrics().
// This adds a timestamp read around each dispatched callback.
func WithMetrics(enabled bool) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithCallbackErrorHandler routes contained callback panics to handler
// instead of the logger. The handler runs on the loop-driving goroutine and
// must not panic.
func WithCallbackErrorHandler(handler CallbackErrorHandler) LoopOption {
	return &loopOptionImpl{func(opts *loopOptions) error {
		opts.onCallbackError = handler
		return nil
	}}
}

// resolveLoopOptions applies LoopOption instances to loopOptions.
func resolveLoopOptions(opts []LoopOption) (*loopOptions, error) {
	cfg := &loopOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
