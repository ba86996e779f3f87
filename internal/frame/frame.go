// Package frame provides the cooperative scheduling model the overlay core
// runs on: one goroutine, frame-aligned callbacks, intervals and
// phase-ordered render transactions.
package frame

import (
	"context"
	"time"
)

// ID identifies a pending frame request. Zero means "none".
type ID int64

// Scheduler runs callbacks on a single logical thread.
type Scheduler interface {
	// RequestFrame schedules fn for the next frame tick.
	RequestFrame(fn func()) ID
	// CancelFrame drops a pending request. Unknown ids are ignored.
	CancelFrame(id ID)
	// Every runs fn on the scheduler thread every d until stop is called.
	Every(d time.Duration, fn func()) (stop func())
	// Do runs fn on the scheduler thread and waits for it to finish.
	Do(ctx context.Context, fn func()) error
}
