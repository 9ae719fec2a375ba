package kfmt

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRingBuffer(t *testing.T) {
	t.Run("read/write", func(t *testing.T) {
		var rb ringBuffer
		exp := "the big brown fox jumped over the lazy dog"

		n, err := rb.Write([]byte(exp))
		if err != nil {
			t.Fatal(err)
		}

		if n != len(exp) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(exp), n)
		}

		if got := readInChunks(&rb, 5); got != exp {
			t.Fatalf("expected to read %q; got %q", exp, got)
		}

		if _, err := rb.Read(make([]byte, 1)); err != io.EOF {
			t.Fatalf("expected io.EOF after draining the buffer; got %v", err)
		}
	})

	t.Run("overflow keeps the newest bytes", func(t *testing.T) {
		var rb ringBuffer

		rb.Write([]byte(strings.Repeat("a", earlyBufferSize)))
		rb.Write([]byte("tail"))

		got := readInChunks(&rb, 100)
		if len(got) != earlyBufferSize {
			t.Fatalf("expected to read %d bytes; got %d", earlyBufferSize, len(got))
		}

		if !strings.HasSuffix(got, "tail") || got[0] != 'a' {
			t.Fatalf("expected the oldest bytes to be evicted; got suffix %q", got[len(got)-8:])
		}
	})

	t.Run("io.Copy", func(t *testing.T) {
		var (
			rb  ringBuffer
			buf bytes.Buffer
		)

		rb.Write([]byte("early output"))
		if _, err := io.Copy(&buf, &rb); err != nil {
			t.Fatal(err)
		}

		if got := buf.String(); got != "early output" {
			t.Fatalf("expected to copy %q; got %q", "early output", got)
		}
	})
}

func readInChunks(rb *ringBuffer, chunkSize int) string {
	var (
		buf   bytes.Buffer
		chunk = make([]byte, chunkSize)
	)

	for {
		n, err := rb.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			return buf.String()
		}
	}
}
