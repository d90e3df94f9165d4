package domain

import (
	"math"
	"testing"
)

func TestSampleMagnitude(t *testing.T) {
	s := Sample{X: 3, Y: 4, Z: 12}
	if got := s.Magnitude(); math.Abs(got-13) > 1e-12 {
		t.Fatalf("expected magnitude 13, got %f", got)
	}
}

func TestFixedPointValueTruncates(t *testing.T) {
	cases := map[float64]int{
		1.8:    180,
		2.509:  250,
		7.6199: 761,
		0.999:  99,
	}
	for ratio, want := range cases {
		if got := (SeismicEvent{MagnitudeRatio: ratio}).FixedPointValue(); got != want {
			t.Fatalf("ratio %v: expected %d, got %d", ratio, want, got)
		}
	}
}

func TestSignedPayloadMessage(t *testing.T) {
	p := SignedPayload{Value: 250, DeviceTimestamp: 1700000000}
	if got := p.Message(); got != "250:1700000000" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestLinkStateString(t *testing.T) {
	if Ready.String() != "READY" || TimeSyncing.String() != "TIME_SYNCING" {
		t.Fatalf("unexpected state names: %s %s", Ready, TimeSyncing)
	}
	if LinkState(42).String() != "UNKNOWN" {
		t.Fatalf("expected UNKNOWN for out-of-range state")
	}
}
