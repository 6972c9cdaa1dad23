// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollEventLabelTable(t *testing.T) {
	full := EngineCaps{Disconnect: true, Prioritized: true}

	for _, tc := range []struct {
		label  string
		events PollEvents
	}{
		{"r", PollReadable},
		{"w", PollWritable},
		{"rw", PollReadable | PollWritable},
		{"d", PollDisconnect},
		{"rd", PollReadable | PollDisconnect},
		{"wd", PollWritable | PollDisconnect},
		{"rwd", PollReadable | PollWritable | PollDisconnect},
		{"p", PollPrioritized},
		{"rp", PollReadable | PollPrioritized},
		{"wp", PollWritable | PollPrioritized},
		{"rwp", PollReadable | PollWritable | PollPrioritized},
		{"dp", PollDisconnect | PollPrioritized},
		{"rdp", PollReadable | PollDisconnect | PollPrioritized},
		{"wdp", PollWritable | PollDisconnect | PollPrioritized},
		{"rwdp", PollReadable | PollWritable | PollDisconnect | PollPrioritized},
	} {
		t.Run(tc.label, func(t *testing.T) {
			got, err := parsePollMask(tc.label, full)
			require.NoError(t, err)
			assert.Equal(t, tc.events, got)
			assert.Equal(t, tc.label, labelPollEvents(tc.events))
		})
	}
}

func TestParsePollMaskDefaults(t *testing.T) {
	got, err := parsePollMask("", EngineCaps{})
	require.NoError(t, err)
	assert.Equal(t, PollReadable|PollWritable, got)
}

func TestParsePollMaskRejectsUnknown(t *testing.T) {
	for _, label := range []string{"x", "wr", "rwx", "rr", "R", "r w"} {
		_, err := parsePollMask(label, EngineCaps{Disconnect: true, Prioritized: true})
		assert.ErrorIs(t, err, ErrBadEventMask, "label %q", label)
	}
}

func TestParsePollMaskCapGating(t *testing.T) {
	base := EngineCaps{}

	_, err := parsePollMask("rw", base)
	assert.NoError(t, err, "r/w must always parse")

	for _, label := range []string{"d", "rd", "rwd"} {
		_, err := parsePollMask(label, base)
		assert.ErrorIs(t, err, ErrBadEventMask, "label %q without disconnect cap", label)
		_, err = parsePollMask(label, EngineCaps{Disconnect: true})
		assert.NoError(t, err, "label %q with disconnect cap", label)
	}

	for _, label := range []string{"p", "rp", "rwp"} {
		_, err := parsePollMask(label, base)
		assert.ErrorIs(t, err, ErrBadEventMask, "label %q without prioritized cap", label)
		_, err = parsePollMask(label, EngineCaps{Prioritized: true})
		assert.NoError(t, err, "label %q with prioritized cap", label)
	}

	// Mixed masks need every referenced capability.
	_, err = parsePollMask("rdp", EngineCaps{Disconnect: true})
	assert.ErrorIs(t, err, ErrBadEventMask)
	_, err = parsePollMask("rdp", EngineCaps{Disconnect: true, Prioritized: true})
	assert.NoError(t, err)
}

func TestLabelPollEventsOutOfRange(t *testing.T) {
	assert.Equal(t, "", labelPollEvents(0))
	assert.Equal(t, "", labelPollEvents(1<<8))
}

func TestRunModeNames(t *testing.T) {
	for mode, name := range map[RunMode]string{
		RunDefault: "default",
		RunOnce:    "once",
		RunNowait:  "nowait",
	} {
		assert.Equal(t, name, mode.String())
		got, err := ParseRunMode(name)
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	got, err := ParseRunMode("")
	require.NoError(t, err)
	assert.Equal(t, RunDefault, got)

	_, err = ParseRunMode("spin")
	assert.ErrorIs(t, err, ErrBadRunMode)

	assert.Equal(t, "", modeIdle.String())
}
