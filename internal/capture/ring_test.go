package capture_test

import (
	"strings"
	"testing"
	"time"

	"mcpgateway/internal/capture"
)

func TestBufferAppendCapsAtLimit(t *testing.T) {
	buf := &capture.Buffer{}
	for i := 0; i < capture.Limit+10; i++ {
		buf.Append("line")
	}
	lines := buf.Last(capture.Limit + 10)
	if len(lines) != capture.Limit {
		t.Fatalf("expected buffer capped at %d, got %d", capture.Limit, len(lines))
	}
}

func TestBufferLastReturnsTail(t *testing.T) {
	buf := &capture.Buffer{}
	for i := 0; i < 5; i++ {
		buf.Append(strings.Repeat("x", i+1))
	}
	last := buf.Last(2)
	if len(last) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(last))
	}
	if last[0].Text != "xxxx" || last[1].Text != "xxxxx" {
		t.Fatalf("unexpected tail contents: %+v", last)
	}
}

func TestBufferLastBeyondLengthReturnsAll(t *testing.T) {
	buf := &capture.Buffer{}
	buf.Append("only")
	last := buf.Last(50)
	if len(last) != 1 || last[0].Text != "only" {
		t.Fatalf("expected single-entry tail, got %+v", last)
	}
}

func TestDrainSplitsLines(t *testing.T) {
	buf := &capture.Buffer{}
	r := strings.NewReader("one\ntwo\nthree\n")
	var renewals int
	capture.Drain(r, buf, func(_ time.Time) { renewals++ })
	lines := buf.Last(10)
	if len(lines) != 3 {
		t.Fatalf("expected 3 drained lines, got %d", len(lines))
	}
	if lines[0].Text != "one" || lines[2].Text != "three" {
		t.Fatalf("unexpected drained contents: %+v", lines)
	}
	if renewals != 3 {
		t.Fatalf("expected 3 onLine callbacks, got %d", renewals)
	}
}
