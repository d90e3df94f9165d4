package quakeflow

import (
	"context"
	"testing"

	"github.com/ghalamif/QuakeFlow/internal/adapters/kvstore"
	"github.com/ghalamif/QuakeFlow/internal/adapters/link"
	"github.com/ghalamif/QuakeFlow/internal/adapters/queue"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

func TestConfFromConfigAndStreamBuilder(t *testing.T) {
	cfg := testConfig(t, "")

	flow, err := ConfFromConfig(cfg, WithFlowOptions(WithKeyStore(kvstore.NewMemStore())))
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}
	if flow.Config() != cfg {
		t.Fatalf("expected Config to be returned verbatim")
	}

	sensorStub := &stubSensor{}
	q := queue.NewMemQueue(2, ports.DropOldest)
	lnk := link.NewStaticLink()
	tx := &stubTransmitter{}

	rt, err := flow.
		StreamIN(
			StreamInSensor(sensorStub),
			StreamInQueue(q),
			StreamInLink(lnk),
			StreamInObservability(&stubObservability{}),
		).
		StreamOUT(
			StreamOutTransmitter(tx),
			StreamOutObservability(&stubObservability{}),
		)
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.sensor != sensorStub {
		t.Fatalf("expected custom sensor to be wired")
	}
	if rt.queue != q {
		t.Fatalf("expected custom queue to be wired")
	}
	if rt.transmitter != tx {
		t.Fatalf("expected custom transmitter to be wired")
	}
}

func TestFlowStreamOutCallbackInstallsTransmitter(t *testing.T) {
	cfg := testConfig(t, "")
	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	rt, err := flow.
		Options(WithKeyStore(kvstore.NewMemStore())).
		StreamOUT(StreamOutCallback("cb", func(SignedPayload) error { return nil }))
	if err != nil {
		t.Fatalf("StreamOUT returned error: %v", err)
	}
	defer rt.Shutdown(context.Background())

	if rt.transmitter.Name() != "cb" {
		t.Fatalf("expected callback transmitter, got %s", rt.transmitter.Name())
	}
}

func TestFlowRunStopsOnCancelledContext(t *testing.T) {
	cfg := testConfig(t, "")
	flow, err := ConfFromConfig(cfg)
	if err != nil {
		t.Fatalf("ConfFromConfig returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := flow.StreamIN(
		StreamInSensor(&stubSensor{}),
		StreamInObservability(&stubObservability{}),
	).Run(ctx,
		StreamOutTransmitter(&stubTransmitter{}),
	); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
}

func TestNilFlowIsRejected(t *testing.T) {
	var f *Flow
	if _, err := f.StreamOUT(); err == nil {
		t.Fatalf("expected error from nil flow")
	}
	if _, err := ConfFromConfig(nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}
