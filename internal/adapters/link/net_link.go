// Package link tracks whether the node has a usable uplink.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

type Config struct {
	Interface     string        `yaml:"interface"`
	ProbeAddress  string        `yaml:"probe_address"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

func (c *Config) ApplyDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 2 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
}

// NetLink considers the uplink associated when the configured interface is up
// with a unicast address and the probe address accepts a TCP connection.
type NetLink struct {
	cfg       Config
	connected atomic.Bool
	dial      func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewNetLink(cfg Config) (*NetLink, error) {
	cfg.ApplyDefaults()
	if cfg.ProbeAddress == "" {
		return nil, errors.New("link probe address is required")
	}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	return &NetLink{cfg: cfg, dial: d.DialContext}, nil
}

// Connect blocks until the link is associated or ctx is done.
func (l *NetLink) Connect(ctx context.Context) error {
	for {
		if err := l.probe(ctx); err == nil {
			l.connected.Store(true)
			return nil
		}
		l.connected.Store(false)

		t := time.NewTimer(l.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Connected re-probes the link and reports the result.
func (l *NetLink) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.DialTimeout)
	defer cancel()
	ok := l.probe(ctx) == nil
	l.connected.Store(ok)
	return ok
}

func (l *NetLink) probe(ctx context.Context) error {
	if l.cfg.Interface != "" {
		if err := interfaceUp(l.cfg.Interface); err != nil {
			return err
		}
	}
	conn, err := l.dial(ctx, "tcp", l.cfg.ProbeAddress)
	if err != nil {
		return fmt.Errorf("probe %s: %w", l.cfg.ProbeAddress, err)
	}
	return conn.Close()
}

func interfaceUp(name string) error {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return err
	}
	if iface.Flags&net.FlagUp == 0 {
		return fmt.Errorf("interface %s is down", name)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return err
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
			return nil
		}
	}
	return fmt.Errorf("interface %s has no unicast address", name)
}

// StaticLink is always associated; used with the simulated sensor and tests.
type StaticLink struct {
	up atomic.Bool
}

func NewStaticLink() *StaticLink {
	l := &StaticLink{}
	l.up.Store(true)
	return l
}

func (s *StaticLink) Connect(ctx context.Context) error {
	for !s.up.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

func (s *StaticLink) Connected() bool { return s.up.Load() }

// Set flips the link state, simulating association loss.
func (s *StaticLink) Set(up bool) { s.up.Store(up) }

var (
	_ ports.Link = (*NetLink)(nil)
	_ ports.Link = (*StaticLink)(nil)
)
