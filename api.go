package quakeflow

import (
	base "github.com/ghalamif/QuakeFlow/pkg/quakeflow"
)

// Re-exported errors for convenience.
var (
	ErrChannelTransmitterClosed = base.ErrChannelTransmitterClosed
)

// Type aliases so consumers can import github.com/ghalamif/QuakeFlow directly.
type (
	Config                = base.Config
	Policy                = base.Policy
	DetectorConfig        = base.DetectorConfig
	DetectorConstants     = base.DetectorConstants
	CollectorConfig       = base.CollectorConfig
	MQTTConfig            = base.MQTTConfig
	OPCUAConfig           = base.OPCUAConfig
	SimulatedSensorConfig = base.SimulatedSensorConfig
	MetricsConfig         = base.MetricsConfig
	SpoolConfig           = base.SpoolConfig
	ArchiveConfig         = base.ArchiveConfig
	Flow                  = base.Flow
	FlowOption            = base.FlowOption
	StreamInOption        = base.StreamInOption
	StreamOutOption       = base.StreamOutOption
	EdgeRuntime           = base.EdgeRuntime
	EdgeRuntimeOption     = base.EdgeRuntimeOption
	Sample                = base.Sample
	SeismicEvent          = base.SeismicEvent
	SignedPayload         = base.SignedPayload
	LinkState             = base.LinkState
	PayloadHandler        = base.PayloadHandler
	Sensor                = base.Sensor
	EventQueue            = base.EventQueue
	Transmitter           = base.Transmitter
	Receipt               = base.Receipt
	Link                  = base.Link
	Clock                 = base.Clock
	KVStore               = base.KVStore
	Spool                 = base.Spool
	Archive               = base.Archive
	ArchiveRecord         = base.ArchiveRecord
	Observability         = base.Observability
	Field                 = base.Field
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...EdgeRuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInSensor(s Sensor) StreamInOption {
	return base.StreamInSensor(s)
}

func StreamInQueue(q EventQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInLink(l Link) StreamInOption {
	return base.StreamInLink(l)
}

func StreamInClock(c Clock) StreamInOption {
	return base.StreamInClock(c)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamOutTransmitter(t Transmitter) StreamOutOption {
	return base.StreamOutTransmitter(t)
}

func StreamOutCallback(name string, fn PayloadHandler) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

func StreamOutSpool(s Spool) StreamOutOption {
	return base.StreamOutSpool(s)
}

func StreamOutArchive(a Archive) StreamOutOption {
	return base.StreamOutArchive(a)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

// Edge runtime and options.
func NewEdgeRuntime(cfg *Config, opts ...EdgeRuntimeOption) (*EdgeRuntime, error) {
	return base.NewEdgeRuntime(cfg, opts...)
}

func WithSensor(s Sensor) EdgeRuntimeOption {
	return base.WithSensor(s)
}

func WithTransmitter(t Transmitter) EdgeRuntimeOption {
	return base.WithTransmitter(t)
}

func WithEventQueue(q EventQueue) EdgeRuntimeOption {
	return base.WithEventQueue(q)
}

func WithLink(l Link) EdgeRuntimeOption {
	return base.WithLink(l)
}

func WithClock(c Clock) EdgeRuntimeOption {
	return base.WithClock(c)
}

func WithKeyStore(s KVStore) EdgeRuntimeOption {
	return base.WithKeyStore(s)
}

func WithSpool(s Spool) EdgeRuntimeOption {
	return base.WithSpool(s)
}

func WithArchive(a Archive) EdgeRuntimeOption {
	return base.WithArchive(a)
}

func WithObservability(obs Observability) EdgeRuntimeOption {
	return base.WithObservability(obs)
}

// Transmitter adapters.
func NewCallbackTransmitter(name string, fn PayloadHandler) Transmitter {
	return base.NewCallbackTransmitter(name, fn)
}

func NewChannelTransmitter(name string, buffer int) (Transmitter, <-chan SignedPayload, func()) {
	return base.NewChannelTransmitter(name, buffer)
}
