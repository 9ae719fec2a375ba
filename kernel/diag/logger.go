// Package diag implements the kernel's leveled diagnostic log. Every record is
// written to the serial line and, once one is attached, to the framebuffer
// console.
package diag

import (
	"image/color"
	"io"

	"kestrel/kernel/kfmt"
	"kestrel/kernel/sync"
)

// Level is the severity of a log record.
type Level uint8

// The supported log levels, from most to least severe.
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

// Console is a text surface that renders in a configurable color.
type Console interface {
	io.Writer
	SetColor(c color.RGBA)
}

var (
	levelTags = [...]string{
		LevelError: "[E] ",
		LevelWarn:  "[W] ",
		LevelInfo:  "[I] ",
		LevelDebug: "[D] ",
		LevelTrace: "[T] ",
	}

	levelColors = [...]color.RGBA{
		LevelError: {R: 0xff, G: 0x55, B: 0x55, A: 0xff},
		LevelWarn:  {R: 0xff, G: 0xd7, B: 0x00, A: 0xff},
		LevelInfo:  {R: 0xff, G: 0xff, B: 0xff, A: 0xff},
		LevelDebug: {R: 0x55, G: 0xff, B: 0xff, A: 0xff},
		LevelTrace: {R: 0x90, G: 0x90, B: 0x90, A: 0xff},
	}

	// While no serial writer is set, records go to the kfmt early buffer
	// (a nil writer) and are flushed once kfmt gets an output sink.
	serialSink  sync.IRQLock[io.Writer]
	consoleSink sync.IRQLock[Console]

	maxLevel = LevelInfo
)

// SetSerial sets the writer that receives every log record.
func SetSerial(w io.Writer) {
	g := serialSink.Acquire()
	*g.Value() = w
	g.Release()
}

// AttachConsole starts mirroring log records to c. Passing nil detaches the
// current console.
func AttachConsole(c Console) {
	g := consoleSink.Acquire()
	*g.Value() = c
	g.Release()
}

// SetLevel discards records less severe than level.
func SetLevel(level Level) {
	maxLevel = level
}

// Logf formats a record and appends a line break. A sink whose lock is
// already held by the interrupted context is skipped for this record instead
// of deadlocking; for the serial line this can only happen when a fault or
// interrupt arrives in the middle of another record.
func Logf(level Level, format string, args ...interface{}) {
	if level > maxLevel {
		return
	}

	if !serialSink.IsHeld() {
		g := serialSink.Acquire()
		w := *g.Value()
		kfmt.Fprintf(w, "%s", levelTags[level])
		kfmt.Fprintf(w, format, args...)
		kfmt.Fprintf(w, "\n")
		g.Release()
	}

	if !consoleSink.IsHeld() {
		g := consoleSink.Acquire()
		if c := *g.Value(); c != nil {
			c.SetColor(levelColors[level])
			kfmt.Fprintf(c, "%s", levelTags[level])
			kfmt.Fprintf(c, format, args...)
			kfmt.Fprintf(c, "\n")
		}
		g.Release()
	}
}

// Errorf logs a record at LevelError.
func Errorf(format string, args ...interface{}) { Logf(LevelError, format, args...) }

// Warnf logs a record at LevelWarn.
func Warnf(format string, args ...interface{}) { Logf(LevelWarn, format, args...) }

// Infof logs a record at LevelInfo.
func Infof(format string, args ...interface{}) { Logf(LevelInfo, format, args...) }

// Debugf logs a record at LevelDebug.
func Debugf(format string, args ...interface{}) { Logf(LevelDebug, format, args...) }

// Tracef logs a record at LevelTrace.
func Tracef(format string, args ...interface{}) { Logf(LevelTrace, format, args...) }

// rawWriter forwards unformatted output to both sinks.
type rawWriter struct{}

// Writer returns an io.Writer that copies everything written to it to the
// serial line and the console, without level tags. It is installed as the
// kfmt output sink so that panics and register dumps reach both outputs.
func Writer() io.Writer {
	return rawWriter{}
}

func (rawWriter) Write(p []byte) (int, error) {
	if !serialSink.IsHeld() {
		g := serialSink.Acquire()
		if w := *g.Value(); w != nil {
			w.Write(p)
		}
		g.Release()
	}

	if !consoleSink.IsHeld() {
		g := consoleSink.Acquire()
		if c := *g.Value(); c != nil {
			c.Write(p)
		}
		g.Release()
	}

	return len(p), nil
}
