package kfmt

import "io"

// ringBufferSize defines size of the ring buffer that buffers early Printf
// output. The ring buffer size must always be a power of 2.
const ringBufferSize = 4096

// ringBuffer models a ring buffer of size ringBufferSize. When full, new
// writes overwrite the oldest buffered bytes.
type ringBuffer struct {
	buffer         [ringBufferSize]byte
	rIndex, wIndex int
}

// Write writes len(p) bytes from p to the ringBuffer.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[rb.wIndex] = b
		rb.wIndex = (rb.wIndex + 1) & (ringBufferSize - 1)
		if rb.rIndex == rb.wIndex {
			rb.rIndex = (rb.rIndex + 1) & (ringBufferSize - 1)
		}
	}

	return len(p), nil
}

// Len returns the number of unread bytes.
func (rb *ringBuffer) Len() int {
	return (rb.wIndex - rb.rIndex) & (ringBufferSize - 1)
}

// Read reads up to len(p) bytes into p. It returns the number of bytes read (0
// <= n <= len(p)) and io.EOF once the buffer is drained.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.rIndex == rb.wIndex {
		return 0, io.EOF
	}

	// Copy the contiguous chunk that starts at rIndex; a wrapped buffer
	// is drained by a second call.
	end := rb.wIndex
	if rb.rIndex > rb.wIndex {
		end = ringBufferSize
	}

	n := copy(p, rb.buffer[rb.rIndex:end])
	rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
	return n, nil
}

// WriteTo drains the buffer into w.
func (rb *ringBuffer) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for rb.rIndex != rb.wIndex {
		end := rb.wIndex
		if rb.rIndex > rb.wIndex {
			end = ringBufferSize
		}

		n, err := w.Write(rb.buffer[rb.rIndex:end])
		total += int64(n)
		rb.rIndex = (rb.rIndex + n) & (ringBufferSize - 1)
		if err != nil {
			return total, err
		}

		if n == 0 {
			return total, io.ErrShortWrite
		}
	}

	return total, nil
}
