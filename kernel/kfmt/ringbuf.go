package kfmt

import "io"

// earlyBufferSize is the capacity of the buffer holding output produced
// before an output sink is attached. It must be a power of 2.
const earlyBufferSize = 4096

// ringBuffer keeps the most recent earlyBufferSize bytes written to it; once
// full, every write evicts the oldest bytes.
type ringBuffer struct {
	buffer [earlyBufferSize]byte
	start  int
	len    int
}

// Write appends p to the buffer. It never fails.
func (rb *ringBuffer) Write(p []byte) (int, error) {
	for _, b := range p {
		rb.buffer[(rb.start+rb.len)&(earlyBufferSize-1)] = b
		if rb.len < earlyBufferSize {
			rb.len++
			continue
		}
		rb.start = (rb.start + 1) & (earlyBufferSize - 1)
	}

	return len(p), nil
}

// Read drains up to len(p) of the oldest buffered bytes into p. It returns
// io.EOF once the buffer is empty.
func (rb *ringBuffer) Read(p []byte) (int, error) {
	if rb.len == 0 {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) && rb.len > 0 {
		p[n] = rb.buffer[rb.start]
		rb.start = (rb.start + 1) & (earlyBufferSize - 1)
		rb.len--
		n++
	}

	return n, nil
}
