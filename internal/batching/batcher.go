// Package batching provides a generic size/time-threshold batcher used to
// turn a stream of individual writes (history rows, property rows) into
// batched inserts.
package batching

import (
	"sync"
	"time"
)

// Batcher accumulates items of type T and flushes them via flushFn once
// maxSize items have arrived or interval has elapsed since the oldest
// unflushed item, whichever happens first.
type Batcher[T any] struct {
	mu       sync.Mutex
	pending  []T
	maxSize  int
	interval time.Duration
	flushFn  func([]T)
	timer    *time.Timer
	closed   bool
	inFlight sync.WaitGroup
}

// New creates a Batcher. flushFn runs in its own goroutine per flush so
// that slow downstream writes never block Add.
func New[T any](maxSize int, interval time.Duration, flushFn func([]T)) *Batcher[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Batcher[T]{maxSize: maxSize, interval: interval, flushFn: flushFn}
}

// Add appends item to the pending batch, triggering an immediate flush if
// the batch has reached maxSize.
func (b *Batcher[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.pending = append(b.pending, item)

	if len(b.pending) >= b.maxSize {
		b.flushLocked()
		return
	}

	if len(b.pending) == 1 {
		b.timer = time.AfterFunc(b.interval, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if !b.closed && len(b.pending) > 0 {
				b.flushLocked()
			}
		})
	}
}

// Flush forces any pending items out immediately.
func (b *Batcher[T]) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) > 0 {
		b.flushLocked()
	}
}

// Len reports the number of items currently buffered, awaiting flush.
func (b *Batcher[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop flushes any remaining items, waits for in-flight flushes to
// complete, and rejects further Add calls. Used during graceful shutdown so
// no buffered sample is lost.
func (b *Batcher[T]) Stop() {
	b.mu.Lock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
	}
	if len(b.pending) > 0 {
		b.flushLocked()
	}
	b.mu.Unlock()
	b.inFlight.Wait()
}

func (b *Batcher[T]) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	batch := b.pending
	b.pending = nil
	b.inFlight.Add(1)
	go func() {
		defer b.inFlight.Done()
		b.flushFn(batch)
	}()
}
