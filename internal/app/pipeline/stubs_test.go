package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/adapters/link"
	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

type mockObs struct {
	mu        sync.Mutex
	counters  map[string]float64
	gauges    map[string][]float64
	errors    []error
	criticals []string
	warns     []string
}

func newMockObs() *mockObs {
	return &mockObs{counters: map[string]float64{}, gauges: map[string][]float64{}}
}

func (m *mockObs) LogDebug(string, ...ports.Field) {}
func (m *mockObs) LogInfo(string, ...ports.Field)  {}

func (m *mockObs) LogWarn(msg string, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockObs) LogError(_ string, err error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, err)
}

func (m *mockObs) LogCritical(msg string, _ error, _ ...ports.Field) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.criticals = append(m.criticals, msg)
}

func (m *mockObs) IncCounter(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += v
}

func (m *mockObs) ObserveLatency(string, float64) {}

func (m *mockObs) SetGauge(name string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = append(m.gauges[name], v)
}

func (m *mockObs) counter(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func (m *mockObs) gaugeHistory(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.gauges[name]...)
}

func (m *mockObs) criticalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.criticals)
}

type stubTransmitter struct {
	mu   sync.Mutex
	errs []error
	sent []domain.SignedPayload
}

func (s *stubTransmitter) Name() string { return "stub" }

func (s *stubTransmitter) Send(_ context.Context, p domain.SignedPayload) (ports.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, p)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return ports.Receipt{}, err
		}
	}
	return ports.Receipt{Status: "201 Created"}, nil
}

func (s *stubTransmitter) payloads() []domain.SignedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SignedPayload(nil), s.sent...)
}

// countingLink wraps a StaticLink and counts Connected checks.
type countingLink struct {
	*link.StaticLink
	mu     sync.Mutex
	checks int
}

func (c *countingLink) Connected() bool {
	c.mu.Lock()
	c.checks++
	c.mu.Unlock()
	return c.StaticLink.Connected()
}

func (c *countingLink) checkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

type failingSigner struct{}

func (failingSigner) Sign(string) (string, error) { return "", errors.New("entropy source failed") }

type stubArchive struct {
	mu      sync.Mutex
	records []ports.ArchiveRecord
}

func (a *stubArchive) Name() string { return "stub" }
func (a *stubArchive) Close() error { return nil }

func (a *stubArchive) Record(_ context.Context, rec ports.ArchiveRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *stubArchive) outcomes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r.Outcome)
	}
	return out
}

type scriptedSensor struct {
	mu      sync.Mutex
	openErr error
	script  []domain.Sample
	errs    map[int]error
	rest    domain.Sample
	reads   int
	closed  bool
}

func (s *scriptedSensor) Open(context.Context) error { return s.openErr }

func (s *scriptedSensor) Read() (domain.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.reads
	s.reads++
	if err, ok := s.errs[i]; ok {
		return domain.Sample{}, err
	}
	if i < len(s.script) {
		return s.script[i], nil
	}
	return s.rest, nil
}

func (s *scriptedSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSensor) readCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
