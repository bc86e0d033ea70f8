package ratelimit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()
	for _, bps := range []int64{0, -1} {
		if l := New(bps); l != nil {
			t.Errorf("New(%d) = %v, want nil", bps, l)
		}
	}
}

func TestNilLimiterPassthrough(t *testing.T) {
	t.Parallel()
	src := strings.NewReader("data")
	if r := NewReader(context.Background(), src, nil); r != io.Reader(src) {
		t.Error("NewReader with nil limiter should return the original reader")
	}

	var buf bytes.Buffer
	if w := NewWriter(context.Background(), &buf, nil); w != io.Writer(&buf) {
		t.Error("NewWriter with nil limiter should return the original writer")
	}
}

func TestReader_ContentIntact(t *testing.T) {
	t.Parallel()
	payload := strings.Repeat("orchestra", 1000)
	r := NewReader(context.Background(), strings.NewReader(payload), New(1<<20))

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != payload {
		t.Errorf("read %d bytes, want %d", len(got), len(payload))
	}
}

func TestWriter_SmallBurstChunks(t *testing.T) {
	t.Parallel()
	// A burst smaller than the write forces several waits.
	var buf bytes.Buffer
	w := NewWriter(context.Background(), &buf, New(64*1024))

	payload := bytes.Repeat([]byte{'a'}, 100*1024)
	start := time.Now()
	n, err := w.Write(payload)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(payload) || buf.Len() != len(payload) {
		t.Errorf("wrote %d bytes (buffer %d), want %d", n, buf.Len(), len(payload))
	}
	// The first 64KB come from the full bucket, the rest has to wait.
	if elapsed := time.Since(start); elapsed < 400*time.Millisecond {
		t.Errorf("write finished in %v, expected throttling", elapsed)
	}
}

func TestReader_CanceledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limiter := New(10)
	// Drain the bucket so the next read must wait.
	limiter.AllowN(time.Now(), 10)

	r := NewReader(ctx, strings.NewReader("data"), limiter)
	if _, err := r.Read(make([]byte, 4)); err == nil {
		t.Error("expected error from canceled context")
	}
}
