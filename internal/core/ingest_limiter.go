package core

// ingest_limiter.go bounds how many spreadsheet ingests run at once.
//
// Slots are a buffered channel. A caller that finds every slot taken waits
// up to maxWait and then gets ErrTooManyIngests, which the API reports as
// 429. On shutdown the server calls WaitForDrain so ingests in flight can
// finish staging their batch.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyIngests is returned when no ingest slot frees up in time.
var ErrTooManyIngests = errors.New("too many concurrent ingests, please try again later")

const (
	DefaultMaxConcurrentIngests = 5
	DefaultIngestWaitTime       = 30 * time.Second
)

// IngestLimiter is a counting semaphore for ingests.
type IngestLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewIngestLimiter allows maxConcurrent ingests; waiters give up after maxWait.
// Non-positive arguments fall back to the defaults.
func NewIngestLimiter(maxConcurrent int, maxWait time.Duration) *IngestLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentIngests
	}
	if maxWait <= 0 {
		maxWait = DefaultIngestWaitTime
	}
	return &IngestLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. It returns ctx.Err() if ctx
// ends first. Every successful Acquire must be paired with Release.
func (l *IngestLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyIngests
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *IngestLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *IngestLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of ingests holding a slot.
func (l *IngestLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// MaxConcurrent returns the slot count.
func (l *IngestLimiter) MaxConcurrent() int {
	return cap(l.slots)
}

// Available returns the number of free slots.
func (l *IngestLimiter) Available() int {
	return cap(l.slots) - len(l.slots)
}

// WaitForDrain blocks until no ingest holds a slot or ctx ends.
func (l *IngestLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// IngestLimiterStatus is a point-in-time view for health checks.
type IngestLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *IngestLimiter) Status() IngestLimiterStatus {
	return IngestLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: l.MaxConcurrent(),
	}
}
