// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loopbridge

import "fmt"

// PollEvents is the set of readiness conditions a poll handle can watch.
type PollEvents uint32

const (
	// PollReadable indicates the descriptor is ready for reading.
	PollReadable PollEvents = 1 << iota
	// PollWritable indicates the descriptor is ready for writing.
	PollWritable
	// PollDisconnect indicates the peer closed its end of the connection.
	PollDisconnect
	// PollPrioritized indicates urgent (out-of-band) data is available.
	PollPrioritized
)

// pollEventLabels maps each valid event combination to its label, indexed by
// the mask value. Index 0 (and anything out of range) has no label. The
// mapping is an explicit finite table rather than bit arithmetic because
// engine builds gate which combinations exist.
var pollEventLabels = [16]string{
	PollReadable:                                              "r",
	PollWritable:                                              "w",
	PollReadable | PollWritable:                               "rw",
	PollDisconnect:                                            "d",
	PollReadable | PollDisconnect:                             "rd",
	PollWritable | PollDisconnect:                             "wd",
	PollReadable | PollWritable | PollDisconnect:              "rwd",
	PollPrioritized:                                           "p",
	PollReadable | PollPrioritized:                            "rp",
	PollWritable | PollPrioritized:                            "wp",
	PollReadable | PollWritable | PollPrioritized:             "rwp",
	PollDisconnect | PollPrioritized:                          "dp",
	PollReadable | PollDisconnect | PollPrioritized:           "rdp",
	PollWritable | PollDisconnect | PollPrioritized:           "wdp",
	PollReadable | PollWritable | PollDisconnect | PollPrioritized: "rwdp",
}

// pollEventMasks is the reverse of pollEventLabels.
var pollEventMasks = func() map[string]PollEvents {
	m := make(map[string]PollEvents, len(pollEventLabels))
	for mask, label := range pollEventLabels {
		if label != "" {
			m[label] = PollEvents(mask)
		}
	}
	return m
}()

// labelPollEvents returns the label for an event combination, or "" when the
// combination is not in the table.
func labelPollEvents(events PollEvents) string {
	if events < PollEvents(len(pollEventLabels)) {
		return pollEventLabels[events]
	}
	return ""
}

// parsePollMask translates a mask label into an event set, rejecting labels
// whose optional event kinds the engine build does not support. The empty
// string selects "rw".
func parsePollMask(label string, caps EngineCaps) (PollEvents, error) {
	if label == "" {
		label = "rw"
	}
	events, ok := pollEventMasks[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrBadEventMask, label)
	}
	if events&PollDisconnect != 0 && !caps.Disconnect {
		return 0, fmt.Errorf("%w: %q: disconnect events unsupported by engine", ErrBadEventMask, label)
	}
	if events&PollPrioritized != 0 && !caps.Prioritized {
		return 0, fmt.Errorf("%w: %q: prioritized events unsupported by engine", ErrBadEventMask, label)
	}
	return events, nil
}
