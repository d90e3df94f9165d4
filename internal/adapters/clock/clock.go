// Package clock provides the monotonic and wall clocks used for timestamp
// reconstruction.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

var ErrNotSynced = errors.New("wall clock not synchronized")

// PlausibilityFloor is the earliest wall time a synchronized clock may report.
var PlausibilityFloor = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// monotonic measures elapsed time since boot from Go's monotonic reading.
type monotonic struct {
	boot time.Time
}

func (m monotonic) Monotonic() time.Duration { return time.Since(m.boot) }

type NTPConfig struct {
	Servers []string      `yaml:"servers"`
	Timeout time.Duration `yaml:"timeout"`
}

// NTPClock derives wall time from the local clock plus the offset measured
// against the first NTP server that answers.
type NTPClock struct {
	monotonic
	servers []string
	timeout time.Duration
	query   func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

	mu     sync.RWMutex
	offset time.Duration
	synced bool
}

func NewNTPClock(cfg NTPConfig) *NTPClock {
	servers := cfg.Servers
	if len(servers) == 0 {
		servers = []string{"pool.ntp.org", "time.google.com"}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NTPClock{
		monotonic: monotonic{boot: time.Now()},
		servers:   servers,
		timeout:   timeout,
		query:     ntp.QueryWithOptions,
	}
}

func (c *NTPClock) Sync(ctx context.Context) error {
	var errs []error
	for _, server := range c.servers {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := c.query(server, ntp.QueryOptions{Timeout: c.timeout})
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("ntp %s: %w", server, err))
			continue
		}
		if time.Now().Add(resp.ClockOffset).Before(PlausibilityFloor) {
			errs = append(errs, fmt.Errorf("ntp %s: implausible time", server))
			continue
		}
		c.mu.Lock()
		c.offset = resp.ClockOffset
		c.synced = true
		c.mu.Unlock()
		return nil
	}
	return errors.Join(append([]error{ErrNotSynced}, errs...)...)
}

func (c *NTPClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Offset returns the last measured correction applied to the local clock.
func (c *NTPClock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// SystemClock trusts the operating system (chrony, systemd-timesyncd) once
// it reports a plausible time.
type SystemClock struct {
	monotonic
	now    func() time.Time
	synced atomic.Bool
}

func NewSystemClock() *SystemClock {
	return &SystemClock{monotonic: monotonic{boot: time.Now()}, now: time.Now}
}

func (c *SystemClock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.now().Before(PlausibilityFloor) {
		return ErrNotSynced
	}
	c.synced.Store(true)
	return nil
}

func (c *SystemClock) Synced() bool   { return c.synced.Load() }
func (c *SystemClock) Now() time.Time { return c.now() }

var (
	_ ports.Clock = (*NTPClock)(nil)
	_ ports.Clock = (*SystemClock)(nil)
)
