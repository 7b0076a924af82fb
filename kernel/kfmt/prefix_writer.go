package kfmt

import (
	"bytes"
	"io"
)

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line.
type PrefixWriter struct {
	// A writer where all writes get sent to.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix string

	midLine bool
}

// Write writes len(p) bytes from p to the underlying data stream. The prefix
// for a line is emitted lazily, right before the first byte of that line, and
// is not included in the returned byte count.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	var written int

	for len(p) > 0 {
		if !w.midLine {
			if _, err := io.WriteString(w.Sink, w.Prefix); err != nil {
				return written, err
			}
			w.midLine = true
		}

		line := p
		if index := bytes.IndexByte(p, '\n'); index != -1 {
			line = p[:index+1]
		}

		n, err := w.Sink.Write(line)
		written += n
		if err != nil {
			return written, err
		}

		if line[len(line)-1] == '\n' {
			w.midLine = false
		}
		p = p[len(line):]
	}

	return written, nil
}
