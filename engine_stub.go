// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build !linux

package loopbridge

// newDefaultEngine reports that no native engine ships for this platform.
// Loops can still be constructed with WithEngine.
func newDefaultEngine() (Engine, error) {
	return nil, ErrEngineUnsupported
}
