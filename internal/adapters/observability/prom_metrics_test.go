package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(NewLogger("error", "json", &bytes.Buffer{}), reg)

	obs.IncCounter(ports.EventsTotal, 2)
	if got := testutil.ToFloat64(obs.counters[ports.EventsTotal]); got != 2 {
		t.Fatalf("expected events counter 2, got %f", got)
	}

	obs.IncCounter(ports.QueueDroppedTotal, 5)
	if got := testutil.ToFloat64(obs.counters[ports.QueueDroppedTotal]); got != 5 {
		t.Fatalf("expected queue drop counter 5, got %f", got)
	}

	obs.SetGauge(ports.LinkState, 3)
	if got := testutil.ToFloat64(obs.gauges[ports.LinkState]); got != 3 {
		t.Fatalf("expected link gauge 3, got %f", got)
	}

	obs.ObserveLatency(ports.DispatchLatencySec, 0.05)
	hCollector := obs.histos[ports.DispatchLatencySec].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("unknown_metric", 1)
	obs.SetGauge("unknown_gauge", 1)
}

func TestPromObsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewPromObs(nil, reg)
	second := NewPromObs(nil, reg)

	first.IncCounter(ports.SamplesTotal, 1)
	second.IncCounter(ports.SamplesTotal, 1)
	if got := testutil.ToFloat64(second.counters[ports.SamplesTotal]); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestPromObsStructuredLogging(t *testing.T) {
	var buf bytes.Buffer
	obs := NewPromObs(NewLogger("debug", "json", &buf), prometheus.NewRegistry())

	obs.LogCritical("sign_failed", errors.New("rng exhausted"), ports.Field{Key: "value", Value: 250})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected a json log line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "sign_failed" || line["error"] != "rng exhausted" || line["critical"] != true {
		t.Fatalf("unexpected log line %v", line)
	}
	if line["value"] != float64(250) {
		t.Fatalf("expected field value=250, got %v", line["value"])
	}
}

func TestNewLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", "text", &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected level filtering: %q", out)
	}
}
