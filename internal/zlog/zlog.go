// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package zlog adapts zerolog as a logiface backend, for wiring loop
// diagnostics into zerolog-based applications.
package zlog

import (
	"io"
	"time"

	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

type (
	// Event buffers a single in-flight log event on top of zerolog's.
	Event struct {
		logiface.UnimplementedEvent
		Z   *zerolog.Event
		lvl logiface.Level
		msg string
	}

	// Logger implements both the event factory and writer halves of a
	// logiface backend.
	Logger struct {
		Z zerolog.Logger
	}
)

var (
	// compile time assertions

	_ logiface.Event                = (*Event)(nil)
	_ logiface.EventFactory[*Event] = (*Logger)(nil)
	_ logiface.Writer[*Event]       = (*Logger)(nil)
)

func (x *Event) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *Event) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *Event) AddError(err error) bool {
	x.Z = x.Z.Err(err)
	return true
}

func (x *Event) AddString(key string, val string) bool {
	x.Z = x.Z.Str(key, val)
	return true
}

func (x *Event) AddInt(key string, val int) bool {
	x.Z = x.Z.Int(key, val)
	return true
}

func (x *Event) AddDuration(key string, val time.Duration) bool {
	x.Z = x.Z.Dur(key, val)
	return true
}

func (x *Event) AddField(key string, val any) {
	x.Z = x.Z.Interface(key, val)
}

func (x *Logger) NewEvent(level logiface.Level) *Event {
	if !level.Enabled() {
		return nil
	}
	r := Event{
		lvl: level,
	}
	switch level {
	case logiface.LevelTrace:
		r.Z = x.Z.Trace()
	case logiface.LevelDebug:
		r.Z = x.Z.Debug()
	case logiface.LevelInformational:
		r.Z = x.Z.Info()
	case logiface.LevelNotice:
		r.Z = x.Z.Warn()
	case logiface.LevelWarning:
		r.Z = x.Z.Warn()
	case logiface.LevelError:
		r.Z = x.Z.Error()
	case logiface.LevelCritical:
		r.Z = x.Z.Fatal()
	case logiface.LevelAlert:
		r.Z = x.Z.Fatal()
	case logiface.LevelEmergency:
		r.Z = x.Z.Panic()
	default:
		// >= 9, translate to numeric levels in zerolog
		// (9 -> -2, 10 -> -3, etc)
		r.Z = x.Z.WithLevel(zerolog.Level(7 - level))
	}
	return &r
}

func (x *Logger) Write(event *Event) error {
	event.Z.Msg(event.msg)
	return nil
}

// New builds a ready-to-use generic logger writing zerolog JSON to w.
func New(w io.Writer) *logiface.Logger[logiface.Event] {
	impl := &Logger{Z: zerolog.New(w).With().Timestamp().Logger()}
	return logiface.New[*Event](
		logiface.WithEventFactory[*Event](impl),
		logiface.WithWriter[*Event](impl),
	).Logger()
}
