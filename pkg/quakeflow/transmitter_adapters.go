package quakeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

// ErrChannelTransmitterClosed is returned when a channel transmitter is used after being closed.
var ErrChannelTransmitterClosed = errors.New("quakeflow: channel transmitter closed")

// NewCallbackTransmitter adapts a PayloadHandler into a Transmitter so callers
// can consume signed reports without running a collector.
func NewCallbackTransmitter(name string, fn PayloadHandler) Transmitter {
	if name == "" {
		name = "callback"
	}
	return &callbackTransmitter{name: name, fn: fn}
}

// NewChannelTransmitter exposes payloads via a channel; it returns the
// transmitter, the read-only channel, and a close function that the caller
// should invoke during shutdown.
func NewChannelTransmitter(name string, buffer int) (Transmitter, <-chan SignedPayload, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan SignedPayload, buffer)
	t := &channelTransmitter{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return t, ch, func() { t.close() }
}

type callbackTransmitter struct {
	name string
	fn   PayloadHandler
}

func (t *callbackTransmitter) Send(_ context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	if t.fn == nil {
		return ports.Receipt{}, fmt.Errorf("callback transmitter %q: nil handler", t.name)
	}
	if err := t.fn(p); err != nil {
		return ports.Receipt{}, err
	}
	return ports.Receipt{Status: "accepted"}, nil
}

func (t *callbackTransmitter) Name() string { return t.name }

type channelTransmitter struct {
	name   string
	ch     chan SignedPayload
	closed chan struct{}
	mu     sync.RWMutex
	once   sync.Once
}

func (t *channelTransmitter) Send(ctx context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	select {
	case <-t.closed:
		return ports.Receipt{}, ErrChannelTransmitterClosed
	default:
	}

	select {
	case <-t.closed:
		return ports.Receipt{}, ErrChannelTransmitterClosed
	case <-ctx.Done():
		return ports.Receipt{}, ctx.Err()
	case t.ch <- p:
		return ports.Receipt{Status: "queued"}, nil
	}
}

func (t *channelTransmitter) Name() string { return t.name }

func (t *channelTransmitter) close() {
	t.once.Do(func() {
		close(t.closed)
		// wait for in-flight sends before closing the data channel
		t.mu.Lock()
		close(t.ch)
		t.mu.Unlock()
	})
}
