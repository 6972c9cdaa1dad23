// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package loopbridge binds host code to a poll-based event engine through
// three cooperating layers: a handle bridge that maps engine identities to
// host wrappers and keeps callback targets alive, a dispatch boundary that
// contains callback panics so they never unwind into the engine, and a loop
// controller exposing run modes, clock access, and engine introspection.
//
// Two handle types ship with the package: Poll, which watches a
// host-owned file descriptor for I/O readiness, and FSPoll, which watches a
// filesystem path by periodic stat. The Linux build includes an
// epoll-backed engine; other platforms supply an Engine via WithEngine.
//
// Loops are cooperative and single-driver: one goroutine calls Drive, and
// all handle operations happen on that goroutine. Drive enforces its own
// non-reentrancy; Stop is the only method intended for cross-goroutine use.
package loopbridge
