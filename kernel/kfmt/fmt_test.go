package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintfToRingBuffer(t *testing.T) {
	defer SetOutputSink(nil)

	SetOutputSink(nil)
	earlyPrintBuffer = ringBuffer{}
	Printf("hello %s", "world")

	var buf bytes.Buffer
	SetOutputSink(&buf)

	if exp, got := "hello world", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}

	Printf(" and %d more", 42)
	if exp, got := "hello world and 42 more", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFprintf(t *testing.T) {
	var buf bytes.Buffer

	Fprintf(&buf, "0x%x", 0xbadf00d)

	if exp, got := "0xbadf00d", buf.String(); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestConsole(t *testing.T) {
	defer SetOutputSink(nil)

	var buf bytes.Buffer
	SetOutputSink(&buf)

	n, err := Console{}.Write([]byte("console"))
	if err != nil || n != 7 {
		t.Fatalf("expected to write 7 bytes; got %d, %v", n, err)
	}

	if exp, got := "console", buf.String(); got != exp {
		t.Fatalf("expected to get %q; got %q", exp, got)
	}
}
