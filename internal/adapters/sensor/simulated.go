// Package sensor holds the simulated accelerometer used for bench runs.
package sensor

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/domain"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

var ErrSimulatedReadFailure = errors.New("simulated bus read failure")

type SimConfig struct {
	Period             time.Duration `yaml:"-"`
	Gravity            float64       `yaml:"gravity"`
	NoiseStdDev        float64       `yaml:"noise_stddev"`
	BurstAmplitude     float64       `yaml:"burst_amplitude"`
	BurstFrequencyHz   float64       `yaml:"burst_frequency_hz"`
	BurstDuration      time.Duration `yaml:"burst_duration"`
	BurstInterval      time.Duration `yaml:"burst_interval"`
	DropoutProbability float64       `yaml:"dropout_probability"`
	FailureProbability float64       `yaml:"failure_probability"`
	Seed               uint64        `yaml:"seed"`
}

func (c *SimConfig) ApplyDefaults() {
	if c.Period <= 0 {
		c.Period = 10 * time.Millisecond
	}
	if c.Gravity == 0 {
		c.Gravity = 9.81
	}
	if c.BurstFrequencyHz <= 0 {
		c.BurstFrequencyHz = 5
	}
	if c.BurstDuration <= 0 {
		c.BurstDuration = 500 * time.Millisecond
	}
}

// Simulated produces gravity plus gaussian noise on Z, with optional periodic
// shaking bursts. Time advances one period per Read so runs are reproducible.
type Simulated struct {
	cfg  SimConfig
	mu   sync.Mutex
	rng  *rand.Rand
	tick int64
	open bool
}

func NewSimulated(cfg SimConfig) *Simulated {
	cfg.ApplyDefaults()
	return &Simulated{cfg: cfg, rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))}
}

func (s *Simulated) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	return nil
}

func (s *Simulated) Read() (domain.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return domain.Sample{}, errors.New("simulated sensor not open")
	}
	elapsed := time.Duration(s.tick) * s.cfg.Period
	s.tick++

	if s.cfg.FailureProbability > 0 && s.rng.Float64() < s.cfg.FailureProbability {
		return domain.Sample{}, ErrSimulatedReadFailure
	}
	if s.cfg.DropoutProbability > 0 && s.rng.Float64() < s.cfg.DropoutProbability {
		// a disconnected accelerometer reads all-zero axes
		return domain.Sample{}, nil
	}

	sample := domain.Sample{
		X: s.noise(),
		Y: s.noise(),
		Z: s.cfg.Gravity + s.noise(),
	}
	if s.inBurst(elapsed) {
		phase := elapsed % s.cfg.BurstInterval
		shake := s.cfg.BurstAmplitude * math.Sin(2*math.Pi*s.cfg.BurstFrequencyHz*phase.Seconds())
		sample.Z += shake
		sample.X += shake / 2
	}
	return sample, nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

func (s *Simulated) noise() float64 {
	if s.cfg.NoiseStdDev == 0 {
		return 0
	}
	return s.rng.NormFloat64() * s.cfg.NoiseStdDev
}

// inBurst reports whether elapsed falls in the shaking window that opens at
// the start of every burst interval after the first.
func (s *Simulated) inBurst(elapsed time.Duration) bool {
	if s.cfg.BurstInterval <= 0 || s.cfg.BurstAmplitude == 0 || elapsed < s.cfg.BurstInterval {
		return false
	}
	return elapsed%s.cfg.BurstInterval < s.cfg.BurstDuration
}

var _ ports.Sensor = (*Simulated)(nil)
