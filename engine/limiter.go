package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/use-agent/partsfetch/metrics"
)

// Limiter bounds the number of concurrent fetches across all requests.
// Waiters are admitted in FIFO order.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int32
	waiting  atomic.Int32
	metrics  *metrics.Metrics
}

// LimiterStats is a snapshot of the limiter state.
type LimiterStats struct {
	Capacity int
	InFlight int
	Waiting  int
}

// NewLimiter creates a Limiter with n permits (minimum 1).
func NewLimiter(n int, m *metrics.Metrics) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(n)),
		capacity: n,
		metrics:  m,
	}
}

// Acquire blocks until a permit is free or ctx is done. It returns the
// time spent waiting.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	l.waiting.Add(1)
	l.publish()

	err := l.sem.Acquire(ctx, 1)
	l.waiting.Add(-1)
	if err != nil {
		l.publish()
		return time.Since(start), err
	}

	l.inFlight.Add(1)
	l.publish()
	wait := time.Since(start)
	l.metrics.ObservePermitWait(wait)
	return wait, nil
}

// Release returns a permit taken by Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
	l.publish()
}

// Stats returns the current permit usage.
func (l *Limiter) Stats() LimiterStats {
	return LimiterStats{
		Capacity: l.capacity,
		InFlight: int(l.inFlight.Load()),
		Waiting:  int(l.waiting.Load()),
	}
}

// Saturated reports whether every permit is taken and callers are queued.
func (l *Limiter) Saturated() bool {
	s := l.Stats()
	return s.InFlight >= s.Capacity && s.Waiting > 0
}

func (l *Limiter) publish() {
	l.metrics.SetLimiter(int(l.inFlight.Load()), int(l.waiting.Load()))
}
