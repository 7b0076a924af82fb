// Package kfmt implements the kernel console: formatted output routed to a
// pluggable sink, an early ring buffer that captures output produced before
// a sink exists, leveled per-module loggers and the kernel panic banner.
package kfmt

import (
	"fmt"
	"io"

	"quados/kernel/sync"
)

var (
	// earlyPrintBuffer is a ring buffer that stores Printf output before the
	// console is initialized.
	earlyPrintBuffer ringBuffer

	// outputSink is a io.Writer where Printf will send its output. If set
	// to nil, then the output will be redirected to the earlyPrintBuffer.
	outputSink io.Writer

	sinkLock sync.Spinlock
)

// SetOutputSink sets the default target for calls to Printf to w and copies
// any data accumulated in the earlyPrintBuffer to it.
func SetOutputSink(w io.Writer) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	outputSink = w
	if w != nil {
		earlyPrintBuffer.WriteTo(w)
	}
}

// Printf formats according to the format specifier (see package fmt) and
// writes the result to the active output sink or, if no sink is installed,
// to the early print ring buffer.
func Printf(format string, args ...interface{}) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		fmt.Fprintf(&earlyPrintBuffer, format, args...)
		return
	}

	fmt.Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer. A nil writer selects the active output sink.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	if w == nil {
		Printf(format, args...)
		return
	}

	fmt.Fprintf(w, format, args...)
}

// Console is an io.Writer that forwards everything written to it to the
// active output sink.
type Console struct{}

// Write implements io.Writer.
func (Console) Write(p []byte) (int, error) {
	sinkLock.Acquire()
	defer sinkLock.Release()

	if outputSink == nil {
		return earlyPrintBuffer.Write(p)
	}

	return outputSink.Write(p)
}
