package quakeflow

import (
	"context"
	"fmt"
)

// Flow is a convenience builder that lets callers say Conf → StreamIN → StreamOUT
// without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []EdgeRuntimeOption
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// StreamInOption configures the sensing side: sensor, event queue, link and clock.
type StreamInOption func(*Flow)

// StreamOutOption configures the delivery side: transmitter, spool, archive.
type StreamOutOption func(*Flow)

// Conf loads YAML from disk, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw EdgeRuntimeOption values to the builder.
func (f *Flow) Options(opts ...EdgeRuntimeOption) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// StreamIN records sensing-side overrides.
func (f *Flow) StreamIN(opts ...StreamInOption) *Flow {
	if f == nil {
		return nil
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// StreamOUT records delivery-side overrides and builds an EdgeRuntime ready to run.
func (f *Flow) StreamOUT(opts ...StreamOutOption) (*EdgeRuntime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return NewEdgeRuntime(f.cfg, f.opts...)
}

// Run is a shortcut for StreamOUT + runtime.Run.
func (f *Flow) Run(ctx context.Context, opts ...StreamOutOption) error {
	rt, err := f.StreamOUT(opts...)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

// WithFlowOptions appends EdgeRuntimeOption values during Conf.
func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

// StreamInSensor injects a custom sample source.
func StreamInSensor(s Sensor) StreamInOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSensor(s))
		}
	}
}

// StreamInQueue swaps the in-memory event queue for a caller-provided implementation.
func StreamInQueue(q EventQueue) StreamInOption {
	return func(f *Flow) {
		if f != nil && q != nil {
			f.appendOptions(WithEventQueue(q))
		}
	}
}

// StreamInLink overrides link supervision.
func StreamInLink(l Link) StreamInOption {
	return func(f *Flow) {
		if f != nil && l != nil {
			f.appendOptions(WithLink(l))
		}
	}
}

// StreamInClock overrides time synchronization.
func StreamInClock(c Clock) StreamInOption {
	return func(f *Flow) {
		if f != nil && c != nil {
			f.appendOptions(WithClock(c))
		}
	}
}

// StreamInObservability overrides the default Prometheus-based observability stack.
func StreamInObservability(obs Observability) StreamInOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

// StreamOutTransmitter injects a custom Transmitter.
func StreamOutTransmitter(t Transmitter) StreamOutOption {
	return func(f *Flow) {
		if f != nil && t != nil {
			f.appendOptions(WithTransmitter(t))
		}
	}
}

// StreamOutCallback installs a transmitter built from a simple callback function.
func StreamOutCallback(name string, fn PayloadHandler) StreamOutOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(WithTransmitter(NewCallbackTransmitter(name, fn)))
		}
	}
}

// StreamOutSpool brings a custom spool for dispatch.on_failure=spool.
func StreamOutSpool(s Spool) StreamOutOption {
	return func(f *Flow) {
		if f != nil && s != nil {
			f.appendOptions(WithSpool(s))
		}
	}
}

// StreamOutArchive records every dispatch attempt in a.
func StreamOutArchive(a Archive) StreamOutOption {
	return func(f *Flow) {
		if f != nil && a != nil {
			f.appendOptions(WithArchive(a))
		}
	}
}

// StreamOutObservability replaces the default observability backend.
func StreamOutObservability(obs Observability) StreamOutOption {
	return func(f *Flow) {
		if f != nil && obs != nil {
			f.appendOptions(WithObservability(obs))
		}
	}
}

func (f *Flow) appendOptions(opts ...EdgeRuntimeOption) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
