// Package detector implements the STA/LTA onset trigger run on every sample.
package detector

import (
	"math"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/domain"
)

// Config holds the signal-processing constants. Magnitudes are in m/s².
type Config struct {
	DropoutFloor   float64       `yaml:"dropout_floor"`
	HPFCoefficient float64       `yaml:"hpf_coefficient"`
	NoiseGate      float64       `yaml:"noise_gate"`
	AlphaLTA       float64       `yaml:"alpha_lta"`
	AlphaSTA       float64       `yaml:"alpha_sta"`
	LTAFloor       float64       `yaml:"lta_floor"`
	TriggerRatio   float64       `yaml:"trigger_ratio"`
	Cooldown       time.Duration `yaml:"cooldown"`
}

// DefaultConfig mirrors the constants the field units ship with.
func DefaultConfig() Config {
	return Config{
		DropoutFloor:   2.0,
		HPFCoefficient: 0.9,
		NoiseGate:      0.04,
		AlphaLTA:       0.05,
		AlphaSTA:       0.40,
		LTAFloor:       0.01,
		TriggerRatio:   1.8,
		Cooldown:       2 * time.Second,
	}
}

// ApplyDefaults fills zero values from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.DropoutFloor == 0 {
		c.DropoutFloor = d.DropoutFloor
	}
	if c.HPFCoefficient == 0 {
		c.HPFCoefficient = d.HPFCoefficient
	}
	if c.NoiseGate == 0 {
		c.NoiseGate = d.NoiseGate
	}
	if c.AlphaLTA == 0 {
		c.AlphaLTA = d.AlphaLTA
	}
	if c.AlphaSTA == 0 {
		c.AlphaSTA = d.AlphaSTA
	}
	if c.LTAFloor == 0 {
		c.LTAFloor = d.LTAFloor
	}
	if c.TriggerRatio == 0 {
		c.TriggerRatio = d.TriggerRatio
	}
	if c.Cooldown == 0 {
		c.Cooldown = d.Cooldown
	}
}

// State is carried across samples and reset only at boot.
type State struct {
	STA        float64
	LTA        float64
	PrevRaw    float64
	Filtered   float64
	Ratio      float64
	InAlarm    bool
	AlarmStart time.Duration
}

// Detector is single-owner; it must not be shared between goroutines.
type Detector struct {
	cfg   Config
	state State
}

func New(cfg Config) *Detector {
	cfg.ApplyDefaults()
	return &Detector{
		cfg: cfg,
		// resting gravity until the stabilization phase seeds a live value
		state: State{PrevRaw: 9.81},
	}
}

// Seed sets both averages and the filter reference to a live magnitude so
// the first real samples do not look like a spike.
func (d *Detector) Seed(magnitude float64) {
	d.state.STA = magnitude
	d.state.LTA = magnitude
	d.state.PrevRaw = magnitude
}

// Plausible reports whether a magnitude clears the dropout floor.
func (d *Detector) Plausible(magnitude float64) bool {
	return magnitude >= d.cfg.DropoutFloor
}

// Process runs one sample through the filter chain. ok is false for dropouts,
// which leave the state untouched.
func (d *Detector) Process(s domain.Sample, now time.Duration) (evt domain.SeismicEvent, triggered bool, ok bool) {
	raw := s.Magnitude()
	if !d.Plausible(raw) {
		return domain.SeismicEvent{}, false, false
	}

	st := &d.state
	st.Filtered = d.cfg.HPFCoefficient * (st.Filtered + raw - st.PrevRaw)
	st.PrevRaw = raw

	signal := math.Abs(st.Filtered)
	if signal < d.cfg.NoiseGate {
		signal = 0
	}

	st.LTA = d.cfg.AlphaLTA*signal + (1-d.cfg.AlphaLTA)*st.LTA
	st.STA = d.cfg.AlphaSTA*signal + (1-d.cfg.AlphaSTA)*st.STA
	if st.LTA < d.cfg.LTAFloor {
		st.LTA = d.cfg.LTAFloor
	}
	st.Ratio = st.STA / st.LTA

	if st.Ratio >= d.cfg.TriggerRatio && signal > d.cfg.NoiseGate && !st.InAlarm {
		evt = domain.SeismicEvent{MagnitudeRatio: st.Ratio, DetectedAt: now}
		triggered = true
		st.InAlarm = true
		st.AlarmStart = now
	}

	if st.InAlarm && now-st.AlarmStart > d.cfg.Cooldown {
		st.InAlarm = false
	}
	return evt, triggered, true
}

// Snapshot returns a copy of the current state.
func (d *Detector) Snapshot() State {
	return d.state
}

func (d *Detector) Config() Config {
	return d.cfg
}

// Ratio returns the STA/LTA ratio computed for the last plausible sample.
func (d *Detector) Ratio() float64 {
	return d.state.Ratio
}
