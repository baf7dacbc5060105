package queue

import "testing"

func TestNewWorkerStopIsIdempotent(t *testing.T) {
	w := NewWorker(nil, nil)
	// Stop must be safe to call without a prior Start (no goroutine was ever
	// spawned, so the WaitGroup is already at zero) and safe to call twice.
	w.Stop()
	w.Stop()
}
