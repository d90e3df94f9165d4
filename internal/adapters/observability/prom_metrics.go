package observability

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/QuakeFlow/internal/ports"
)

type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the QuakeFlow metrics on reg (the default registerer
// when nil). Registering twice on the same registry reuses the collectors.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) *PromObs {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counterHelp := map[string]string{
		ports.SamplesTotal:      "Samples processed by the detector.",
		ports.DropoutsTotal:     "Samples discarded below the dropout floor.",
		ports.ReadFailuresTotal: "Transient sensor read failures.",
		ports.OverrunsTotal:     "Sample deadlines missed by the detector loop.",
		ports.EventsTotal:       "Seismic events emitted by the STA/LTA trigger.",
		ports.QueueDroppedTotal: "Events lost because the event queue was full.",
		ports.DispatchSentTotal: "Signed reports accepted by the collector.",
		ports.DispatchFailTotal: "Report transmissions that failed.",
		ports.DispatchDropTotal: "Events discarded by the dispatcher without delivery.",
		ports.SpooledTotal:      "Reports written to the spool for redelivery.",
		ports.ReplayedTotal:     "Spooled reports delivered after reconnection.",
	}
	gaugeHelp := map[string]string{
		ports.QueueLength:    "Events waiting in the event queue.",
		ports.StaLtaRatio:    "Most recent STA/LTA ratio.",
		ports.LinkState:      "Dispatcher state: 0 disconnected, 1 connecting, 2 time syncing, 3 ready.",
		ports.SpoolSizeBytes: "Size of the spool on disk.",
	}

	p := &PromObs{
		logger:   logger,
		counters: make(map[string]prometheus.Counter, len(counterHelp)),
		gauges:   make(map[string]prometheus.Gauge, len(gaugeHelp)),
		histos:   make(map[string]prometheus.Observer, 1),
	}
	for name, help := range counterHelp {
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		p.counters[name] = registerOrReuse(reg, c).(prometheus.Counter)
	}
	for name, help := range gaugeHelp {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		p.gauges[name] = registerOrReuse(reg, g).(prometheus.Gauge)
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.DispatchLatencySec,
		Help:    "Latency of a single report transmission.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	p.histos[ports.DispatchLatencySec] = registerOrReuse(reg, latency).(prometheus.Histogram)
	return p
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (p *PromObs) LogDebug(msg string, fields ...ports.Field) {
	p.logger.Debug(msg, attrs(fields)...)
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, fields ...ports.Field) {
	p.logger.Warn(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), errAttr(err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), errAttr(err), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

var _ ports.Observability = (*PromObs)(nil)
