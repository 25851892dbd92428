package ratelimit

import (
	"context"
	"time"
)

// Result is the outcome of a window reservation.
type Result struct {
	Allowed bool
	// Count is the number of requests already inside the window, not
	// including the one being reserved.
	Count   int
	Limit   int
	ResetAt time.Time
}

// WindowStore tracks recent request timestamps per identity key.
//
// Reserve evicts entries older than the window, counts the remainder, and
// appends the current request only when the count is below the limit. The
// evict-count-append sequence is atomic per key so two concurrent requests
// from the same identity cannot both observe count < limit and both pass.
type WindowStore interface {
	Reserve(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Count(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}
