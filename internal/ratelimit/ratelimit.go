// Package ratelimit throttles FTP data transfers to a fixed number of bytes
// per second using a token bucket.
package ratelimit

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// New creates a limiter allowing bytesPerSecond with a burst of one second
// worth of data. It returns nil when bytesPerSecond is not positive, which
// NewReader and NewWriter treat as "unlimited".
func New(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(bytesPerSecond))
}

// chunk bounds a single wait to the bucket size; WaitN fails for n > burst.
func chunk(limiter *rate.Limiter, n, max int) int {
	if b := limiter.Burst(); b < max {
		max = b
	}
	if n > max {
		return max
	}
	return n
}

type reader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

// NewReader wraps r so reads are paced by limiter. A nil limiter returns r
// unchanged.
func NewReader(ctx context.Context, r io.Reader, limiter *rate.Limiter) io.Reader {
	if limiter == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, limiter: limiter}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n := chunk(r.limiter, len(p), 8*1024)
	if err := r.limiter.WaitN(r.ctx, n); err != nil {
		return 0, err
	}
	return r.r.Read(p[:n])
}

type writer struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

// NewWriter wraps w so writes are paced by limiter. A nil limiter returns w
// unchanged.
func NewWriter(ctx context.Context, w io.Writer, limiter *rate.Limiter) io.Writer {
	if limiter == nil {
		return w
	}
	return &writer{ctx: ctx, w: w, limiter: limiter}
}

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := chunk(w.limiter, len(p)-written, 64*1024)
		if err := w.limiter.WaitN(w.ctx, n); err != nil {
			return written, err
		}

		m, err := w.w.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
