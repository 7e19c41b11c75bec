// Package concurrency provides bounded-fan-out primitives shared by the
// chat database scanner and the section generators, which both need to
// cap concurrent work against a slow external resource (SQLite files, an
// LLM provider) without blocking the whole pipeline on a single slot.
package concurrency

import "context"

// Semaphore bounds the number of concurrently in-flight operations.
type Semaphore struct {
	slots chan struct{}
}

// NewSemaphore creates a semaphore allowing up to max concurrent holders.
func NewSemaphore(maxConcurrent int) *Semaphore {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Semaphore{slots: make(chan struct{}, maxConcurrent)}
}

// Acquire reserves a slot, blocking until one is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a previously acquired slot.
func (s *Semaphore) Release() {
	<-s.slots
}
