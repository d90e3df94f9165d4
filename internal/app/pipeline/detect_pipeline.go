package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ghalamif/QuakeFlow/internal/app/detector"
	"github.com/ghalamif/QuakeFlow/internal/ports"
)

type DetectConfig struct {
	Period               time.Duration
	StabilizationSamples int
}

// RunDetectPipeline samples the sensor on a fixed absolute schedule, runs the
// STA/LTA trigger and hands events to the queue. It returns nil once ctx is
// cancelled and an error only when the sensor cannot be opened.
func RunDetectPipeline(ctx context.Context, sensor ports.Sensor, det *detector.Detector, q ports.EventQueue, clk ports.Clock, cfg DetectConfig, obs ports.Observability) error {
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Millisecond
	}

	if err := sensor.Open(ctx); err != nil {
		obs.LogCritical("sensor_open_failed", err)
		return fmt.Errorf("open sensor: %w", err)
	}
	defer func() {
		if err := sensor.Close(); err != nil {
			obs.LogError("sensor_close_failed", err)
		}
	}()

	seeded := stabilize(ctx, sensor, det, cfg, obs)
	if ctx.Err() != nil {
		return nil
	}
	obs.LogInfo("detector_stabilized",
		ports.Field{Key: "seeded_samples", Value: seeded},
		ports.Field{Key: "baseline", Value: det.Snapshot().LTA},
	)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	start := time.Now()
	timer := time.NewTimer(cfg.Period)
	defer timer.Stop()

	for n := int64(1); ; {
		if wait := time.Until(start.Add(time.Duration(n) * cfg.Period)); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		sampleOnce(sensor, det, q, clk, obs)

		n++
		if due := int64(time.Since(start) / cfg.Period); due > n {
			obs.IncCounter(ports.OverrunsTotal, float64(due-n))
			n = due
		}
	}
}

// stabilize reads one sample per period and seeds the detector with every
// plausible magnitude so the averages start from the resting baseline.
func stabilize(ctx context.Context, sensor ports.Sensor, det *detector.Detector, cfg DetectConfig, obs ports.Observability) int {
	seeded := 0
	for i := 0; i < cfg.StabilizationSamples; i++ {
		if s, err := sensor.Read(); err == nil {
			if m := s.Magnitude(); det.Plausible(m) {
				det.Seed(m)
				seeded++
			}
		} else {
			obs.LogDebug("stabilization_read_failed", ports.Field{Key: "error", Value: err.Error()})
		}

		select {
		case <-ctx.Done():
			return seeded
		case <-time.After(cfg.Period):
		}
	}
	return seeded
}

func sampleOnce(sensor ports.Sensor, det *detector.Detector, q ports.EventQueue, clk ports.Clock, obs ports.Observability) {
	s, err := sensor.Read()
	if err != nil {
		obs.IncCounter(ports.ReadFailuresTotal, 1)
		obs.LogDebug("sensor_read_failed", ports.Field{Key: "error", Value: err.Error()})
		return
	}

	evt, triggered, ok := det.Process(s, clk.Monotonic())
	if !ok {
		obs.IncCounter(ports.DropoutsTotal, 1)
		return
	}
	obs.IncCounter(ports.SamplesTotal, 1)
	obs.SetGauge(ports.StaLtaRatio, det.Ratio())
	if !triggered {
		return
	}

	obs.IncCounter(ports.EventsTotal, 1)
	if !q.Offer(evt) {
		obs.IncCounter(ports.QueueDroppedTotal, 1)
		obs.LogWarn("event_queue_full",
			ports.Field{Key: "ratio", Value: evt.MagnitudeRatio},
			ports.Field{Key: "dropped_total", Value: q.Dropped()},
		)
	}
	obs.SetGauge(ports.QueueLength, float64(q.Len()))
}
