package link

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestNetLinkConnectsToReachableProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	l, err := NewNetLink(Config{ProbeAddress: ln.Addr().String()})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := l.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !l.Connected() {
		t.Fatalf("expected link to report connected")
	}

	ln.Close()
	if l.Connected() {
		t.Fatalf("expected link loss after probe target went away")
	}
}

func TestNetLinkConnectHonoursContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	l, err := NewNetLink(Config{ProbeAddress: addr, RetryInterval: 10 * time.Millisecond, DialTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := l.Connect(ctx); err == nil {
		t.Fatalf("expected connect to give up when ctx expires")
	}
}

func TestNetLinkUnknownInterface(t *testing.T) {
	l, err := NewNetLink(Config{Interface: "does-not-exist0", ProbeAddress: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new link: %v", err)
	}
	if l.Connected() {
		t.Fatalf("expected missing interface to be reported as down")
	}
}

func TestNewNetLinkRequiresProbe(t *testing.T) {
	if _, err := NewNetLink(Config{}); err == nil {
		t.Fatalf("expected missing probe address error")
	}
}

func TestStaticLink(t *testing.T) {
	l := NewStaticLink()
	if !l.Connected() {
		t.Fatalf("static link should start up")
	}
	l.Set(false)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Connect(ctx); err == nil {
		t.Fatalf("expected connect to block while link is down")
	}
	l.Set(true)
	if err := l.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
}
