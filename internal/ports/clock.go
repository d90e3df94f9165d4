package ports

import (
	"context"
	"time"
)

// Clock combines the device monotonic clock with a synchronized wall clock.
type Clock interface {
	// Monotonic returns the time elapsed since boot.
	Monotonic() time.Duration
	// Sync performs one synchronization attempt against the time authority.
	Sync(ctx context.Context) error
	Synced() bool
	// Now returns the wall-clock time; only trustworthy once Synced is true.
	Now() time.Time
}
