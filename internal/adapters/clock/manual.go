package clock

import (
	"context"
	"sync"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// ManualClock is driven explicitly; used by simulations and tests.
type ManualClock struct {
	mu       sync.Mutex
	mono     time.Duration
	wall     time.Time
	synced   bool
	syncErrs []error
	syncs    int
}

func NewManualClock(wall time.Time) *ManualClock {
	return &ManualClock{wall: wall}
}

func (c *ManualClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

// Advance moves both clocks forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mono += d
	c.wall = c.wall.Add(d)
}

// FailSyncs queues errors returned by the next Sync calls, in order.
func (c *ManualClock) FailSyncs(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncErrs = append(c.syncErrs, errs...)
}

func (c *ManualClock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncs++
	if len(c.syncErrs) > 0 {
		err := c.syncErrs[0]
		c.syncErrs = c.syncErrs[1:]
		return err
	}
	c.synced = true
	return nil
}

func (c *ManualClock) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// SyncCalls reports how many times Sync was invoked.
func (c *ManualClock) SyncCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncs
}

var _ ports.Clock = (*ManualClock)(nil)
